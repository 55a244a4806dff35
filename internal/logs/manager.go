package logs

import (
	"context"

	"go.uber.org/zap"

	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/domain"
)

// ManagerConfig holds configuration for the log manager
type ManagerConfig struct {
	BufferSize         int // Number of entries to keep in ring buffer
	SubscriptionBuffer int // Buffer size for subscription channels
	Logger             *zap.Logger
}

// DefaultManagerConfig returns the default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BufferSize:         constants.DefaultLogBufferSize,
		SubscriptionBuffer: constants.DefaultSubscriptionBuffer,
	}
}

// Manager stores worker output and fans it out to subscribers
type Manager struct {
	buffer        *RingBuffer
	subscriptions *SubscriptionManager
}

// NewManager creates a new log manager
func NewManager(config ManagerConfig) *Manager {
	defaults := DefaultManagerConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.SubscriptionBuffer <= 0 {
		config.SubscriptionBuffer = defaults.SubscriptionBuffer
	}

	return &Manager{
		buffer:        NewRingBuffer(config.BufferSize),
		subscriptions: NewSubscriptionManager(config.SubscriptionBuffer, config.Logger),
	}
}

// Write adds a log entry to the buffer and broadcasts to subscribers
func (m *Manager) Write(entry domain.LogEntry) {
	m.buffer.Write(entry)
	m.subscriptions.Broadcast(entry)
}

// Query returns the newest limit entries matching the filter and the
// number of matches before limiting. limit <= 0 returns every match.
func (m *Manager) Query(filter domain.LogFilter, limit int) ([]domain.LogEntry, int, error) {
	return FilterEntries(m.buffer.Read(), filter, limit)
}

// Subscribe creates a subscription for log entries matching the filter
func (m *Manager) Subscribe(filter domain.LogFilter) (string, <-chan domain.LogEntry, error) {
	return m.subscriptions.Subscribe(filter)
}

// Unsubscribe removes a subscription
func (m *Manager) Unsubscribe(id string) {
	m.subscriptions.Unsubscribe(id)
}

// Stats returns statistics about the log manager
func (m *Manager) Stats() domain.LogStats {
	return domain.LogStats{
		TotalEntries: m.buffer.Count(),
		BufferSize:   m.buffer.Capacity(),
		Subscribers:  m.subscriptions.Count(),
	}
}

// Close closes the manager and all subscriptions
func (m *Manager) Close() {
	m.subscriptions.Close()
}

// Forward copies every new worker line to logger until ctx is done or the
// manager is closed. Stdout lines are logged at info, stderr at warn.
func (m *Manager) Forward(ctx context.Context, logger *zap.Logger) error {
	id, ch, err := m.Subscribe(domain.LogFilter{})
	if err != nil {
		return err
	}
	defer m.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-ch:
			if !ok {
				return nil
			}
			fields := []zap.Field{zap.String("run_id", entry.RunID)}
			if entry.Stream == domain.StreamStderr {
				logger.Warn(entry.Line, fields...)
			} else {
				logger.Info(entry.Line, fields...)
			}
		}
	}
}
