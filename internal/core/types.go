// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"strings"
	"time"
)

// ClockTime is a time or duration in nanoseconds.
type ClockTime uint64

// Common clock values.
const (
	ClockTimeNone ClockTime = ^ClockTime(0)

	Nanosecond  ClockTime = 1
	Microsecond           = 1000 * Nanosecond
	Millisecond           = 1000 * Microsecond
	Second                = 1000 * Millisecond
)

// IsValid reports whether t holds a time (is not ClockTimeNone).
func (t ClockTime) IsValid() bool {
	return t != ClockTimeNone
}

// Duration converts t to a time.Duration. ClockTimeNone converts to zero.
func (t ClockTime) Duration() time.Duration {
	if !t.IsValid() {
		return 0
	}
	return time.Duration(t)
}

// String formats t as h:mm:ss.nnnnnnnnn, or "none".
func (t ClockTime) String() string {
	if !t.IsValid() {
		return "none"
	}
	ns := uint64(t)
	return fmt.Sprintf("%d:%02d:%02d.%09d",
		ns/uint64(time.Hour), ns/uint64(time.Minute)%60, ns/uint64(time.Second)%60, ns%uint64(time.Second))
}

// ClockTimeFromDuration converts a non-negative duration.
func ClockTimeFromDuration(d time.Duration) ClockTime {
	if d < 0 {
		return 0
	}
	return ClockTime(d)
}

// Buffer is a unit of media moving between a host and an engine.
type Buffer struct {
	Data     []byte
	PTS      ClockTime
	DTS      ClockTime
	Duration ClockTime
	// Discont marks the first buffer after lost or dropped frames.
	Discont bool
}

// NewBuffer wraps data with every timestamp unset.
func NewBuffer(data []byte) Buffer {
	return Buffer{
		Data:     data,
		PTS:      ClockTimeNone,
		DTS:      ClockTimeNone,
		Duration: ClockTimeNone,
	}
}

// Caps describes a negotiated media format as a media type plus ordered fields.
type Caps struct {
	MediaType string
	fields    []capsField
}

type capsField struct {
	name  string
	value any
}

// NewCaps creates caps for a media type such as "audio/x-raw".
func NewCaps(mediaType string) *Caps {
	return &Caps{MediaType: mediaType}
}

// Set adds or replaces a field. Supported values are string, int and bool.
func (c *Caps) Set(name string, value any) *Caps {
	for i := range c.fields {
		if c.fields[i].name == name {
			c.fields[i].value = value
			return c
		}
	}
	c.fields = append(c.fields, capsField{name: name, value: value})
	return c
}

// Get returns a field value.
func (c *Caps) Get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	for _, f := range c.fields {
		if f.name == name {
			return f.value, true
		}
	}
	return nil, false
}

// Int returns an integer field, or zero when absent.
func (c *Caps) Int(name string) int {
	v, _ := c.Get(name)
	i, _ := v.(int)
	return i
}

// StringField returns a string field, or "" when absent.
func (c *Caps) StringField(name string) string {
	v, _ := c.Get(name)
	s, _ := v.(string)
	return s
}

func (c *Caps) String() string {
	if c == nil {
		return "NONE"
	}
	var sb strings.Builder
	sb.WriteString(c.MediaType)
	for _, f := range c.fields {
		sb.WriteString(", ")
		sb.WriteString(f.name)
		switch v := f.value.(type) {
		case string:
			fmt.Fprintf(&sb, "=(string)%s", v)
		case int:
			fmt.Fprintf(&sb, "=(int)%d", v)
		case bool:
			fmt.Fprintf(&sb, "=(boolean)%t", v)
		default:
			fmt.Fprintf(&sb, "=%v", v)
		}
	}
	return sb.String()
}
