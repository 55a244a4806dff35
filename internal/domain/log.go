package domain

import "time"

// Stream represents the output stream type
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamSystem marks lines written by the supervisor itself
	StreamSystem Stream = "system"
)

// String returns the string representation of Stream
func (s Stream) String() string {
	return string(s)
}

// LogEntry represents a single line of worker output
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Stream    Stream    `json:"stream"`
	Line      string    `json:"line"`
}

// LogFilter defines criteria for filtering log entries
type LogFilter struct {
	RunID   string // Only lines from this run
	Streams []Stream
	Pattern string // Filter by pattern match
	IsRegex bool   // If true, Pattern is a regex; otherwise substring match
}

// IsEmpty returns true if no filters are set
func (f LogFilter) IsEmpty() bool {
	return f.RunID == "" && len(f.Streams) == 0 && f.Pattern == ""
}

// MatchesRun returns true if the run ID matches the filter
func (f LogFilter) MatchesRun(id string) bool {
	return f.RunID == "" || f.RunID == id
}

// MatchesStream returns true if the stream matches the filter
func (f LogFilter) MatchesStream(s Stream) bool {
	if len(f.Streams) == 0 {
		return true
	}
	for _, want := range f.Streams {
		if want == s {
			return true
		}
	}
	return false
}

// LogStats contains statistics about the log buffer
type LogStats struct {
	TotalEntries int `json:"total_entries"`
	BufferSize   int `json:"buffer_size"`
	Subscribers  int `json:"subscribers"`
}
