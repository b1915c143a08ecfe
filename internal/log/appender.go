package log

import "io"

// MultiWriter fans log output out to every appender. A failing appender
// does not stop the others; the first error is reported.
type MultiWriter struct {
	writers []io.Writer
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	var first error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil && first == nil {
			first = err
		}
	}
	return len(p), first
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}
