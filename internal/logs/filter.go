package logs

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charliek/minerd/internal/domain"
)

// MaxPatternLength is the maximum allowed length for filter patterns
const MaxPatternLength = 256

// Filter applies a LogFilter to log entries
type Filter struct {
	filter domain.LogFilter
	regex  *regexp.Regexp
}

// NewFilter compiles a LogFilter. Regex patterns are compiled once here.
func NewFilter(filter domain.LogFilter) (*Filter, error) {
	if len(filter.Pattern) > MaxPatternLength {
		return nil, fmt.Errorf("%w: pattern exceeds maximum length of %d characters", domain.ErrInvalidPattern, MaxPatternLength)
	}

	f := &Filter{filter: filter}
	if filter.Pattern != "" && filter.IsRegex {
		re, err := regexp.Compile(filter.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPattern, err)
		}
		f.regex = re
	}
	return f, nil
}

// Matches returns true if the entry matches the filter criteria
func (f *Filter) Matches(entry domain.LogEntry) bool {
	if !f.filter.MatchesRun(entry.RunID) || !f.filter.MatchesStream(entry.Stream) {
		return false
	}
	switch {
	case f.filter.Pattern == "":
		return true
	case f.regex != nil:
		return f.regex.MatchString(entry.Line)
	default:
		return strings.Contains(entry.Line, f.filter.Pattern)
	}
}

// FilterEntries filters entries and keeps at most the newest limit of them.
// It also returns how many entries matched before limiting.
func FilterEntries(entries []domain.LogEntry, filter domain.LogFilter, limit int) ([]domain.LogEntry, int, error) {
	matched := entries
	if !filter.IsEmpty() {
		f, err := NewFilter(filter)
		if err != nil {
			return nil, 0, err
		}
		matched = make([]domain.LogEntry, 0, len(entries))
		for _, entry := range entries {
			if f.Matches(entry) {
				matched = append(matched, entry)
			}
		}
	}

	total := len(matched)
	if limit > 0 && total > limit {
		matched = matched[total-limit:]
	}
	return matched, total, nil
}
