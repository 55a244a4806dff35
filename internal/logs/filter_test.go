package logs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/minerd/internal/domain"
)

func TestFilter_MatchesRunAndStream(t *testing.T) {
	filter, err := NewFilter(domain.LogFilter{
		RunID:   "run-2",
		Streams: []domain.Stream{domain.StreamStderr},
	})
	require.NoError(t, err)

	assert.True(t, filter.Matches(makeRunEntry("run-2", domain.StreamStderr, "panic")))
	assert.False(t, filter.Matches(makeRunEntry("run-1", domain.StreamStderr, "panic")))
	assert.False(t, filter.Matches(makeRunEntry("run-2", domain.StreamStdout, "panic")))
}

func TestFilter_MatchesSubstring(t *testing.T) {
	filter, err := NewFilter(domain.LogFilter{Pattern: "ERROR"})
	require.NoError(t, err)

	assert.True(t, filter.Matches(makeEntry("ERROR: peer disconnected")))
	assert.False(t, filter.Matches(makeEntry("error lowercase")))
}

func TestFilter_MatchesRegex(t *testing.T) {
	filter, err := NewFilter(domain.LogFilter{
		Pattern: `(?i)mined block \d+`,
		IsRegex: true,
	})
	require.NoError(t, err)

	assert.True(t, filter.Matches(makeEntry("Mined block 12345")))
	assert.False(t, filter.Matches(makeEntry("mined block ???")))
}

func TestFilter_InvalidPattern(t *testing.T) {
	t.Run("bad regex", func(t *testing.T) {
		_, err := NewFilter(domain.LogFilter{Pattern: "[", IsRegex: true})
		assert.ErrorIs(t, err, domain.ErrInvalidPattern)
	})

	t.Run("too long", func(t *testing.T) {
		_, err := NewFilter(domain.LogFilter{Pattern: strings.Repeat("a", MaxPatternLength+1)})
		assert.ErrorIs(t, err, domain.ErrInvalidPattern)
	})
}

func TestFilterEntries(t *testing.T) {
	entries := []domain.LogEntry{
		makeRunEntry("a", domain.StreamStdout, "one"),
		makeRunEntry("a", domain.StreamStderr, "two"),
		makeRunEntry("b", domain.StreamStdout, "three"),
		makeRunEntry("b", domain.StreamStdout, "four"),
	}

	t.Run("empty filter keeps all", func(t *testing.T) {
		out, total, err := FilterEntries(entries, domain.LogFilter{}, 0)
		require.NoError(t, err)
		assert.Len(t, out, 4)
		assert.Equal(t, 4, total)
	})

	t.Run("limit keeps newest", func(t *testing.T) {
		out, total, err := FilterEntries(entries, domain.LogFilter{RunID: "b"}, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"four"}, lines(out))
		assert.Equal(t, 2, total)
	})
}
