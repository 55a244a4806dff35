package logs

import (
	"io"
	"strings"
	"time"

	"github.com/charliek/minerd/internal/domain"
)

// SystemWriter returns a writer that records each line written to it as a
// system entry without a run ID.
func (m *Manager) SystemWriter() io.Writer {
	return systemWriter{m: m}
}

type systemWriter struct {
	m *Manager
}

func (w systemWriter) Write(p []byte) (int, error) {
	now := time.Now()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		w.m.Write(domain.LogEntry{Timestamp: now, Stream: domain.StreamSystem, Line: line})
	}
	return len(p), nil
}
