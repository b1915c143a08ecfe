package log

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format expands the pattern tokens %time, %level, %field, %msg, %caller, %func and %goroutine.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	r := strings.NewReplacer(
		"%time", entry.Time.Format(f.time),
		"%level", strings.ToUpper(entry.Level.String()),
		"%field", buildFields(entry),
		"%msg", entry.Message,
		"%caller", getCaller(entry),
		"%func", getFunc(entry),
		"%goroutine", getGoroutineID(),
	)
	return []byte(r.Replace(f.pattern)), nil
}

// getCaller returns package/file.go:line of the logging call.
func getCaller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	file := entry.Caller.File
	if i := strings.LastIndex(file, "/"); i != -1 {
		file = file[i+1:]
	}
	pkg := ""
	if fn := entry.Caller.Function; fn != "" {
		if parts := strings.Split(fn, "."); len(parts) > 1 {
			pkgParts := strings.Split(parts[0], "/")
			pkg = pkgParts[len(pkgParts)-1]
		}
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, entry.Caller.Line)
}

func getFunc(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	name := entry.Caller.Function
	if i := strings.LastIndex(name, "."); i != -1 {
		return name[i+1:]
	}
	return name
}

func getGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))
	if len(fields) > 0 {
		return fields[0]
	}
	return "unknown"
}

func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		val, ok := entry.Data[k].(string)
		if !ok {
			val = fmt.Sprint(entry.Data[k])
		}
		fields = append(fields, k+"="+val)
	}
	return strings.Join(fields, ",")
}
