package logs

import (
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/charliek/minerd/internal/domain"
)

var subscriptionIDCounter atomic.Uint64

// Subscription represents a log subscriber
type Subscription struct {
	id      string
	ch      chan domain.LogEntry
	filter  *Filter
	closed  atomic.Bool
	dropped atomic.Uint64
}

func newSubscription(filter domain.LogFilter, bufferSize int) (*Subscription, error) {
	f, err := NewFilter(filter)
	if err != nil {
		return nil, err
	}

	return &Subscription{
		id:     "sub-" + strconv.FormatUint(subscriptionIDCounter.Add(1), 10),
		ch:     make(chan domain.LogEntry, bufferSize),
		filter: f,
	}, nil
}

// ID returns the subscription ID
func (s *Subscription) ID() string {
	return s.id
}

// Channel returns the channel for receiving log entries
func (s *Subscription) Channel() <-chan domain.LogEntry {
	return s.ch
}

// Dropped returns how many entries were discarded because the channel was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Send delivers an entry without blocking.
// Returns false if the channel is full or closed.
func (s *Subscription) Send(entry domain.LogEntry) bool {
	if s.closed.Load() {
		return false
	}
	if !s.filter.Matches(entry) {
		return true
	}

	select {
	case s.ch <- entry:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close closes the subscription
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// SubscriptionManager manages multiple subscriptions
type SubscriptionManager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	bufferSize    int
	logger        *zap.Logger
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(bufferSize int, logger *zap.Logger) *SubscriptionManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionManager{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    bufferSize,
		logger:        logger,
	}
}

// Subscribe creates a new subscription
func (m *SubscriptionManager) Subscribe(filter domain.LogFilter) (string, <-chan domain.LogEntry, error) {
	sub, err := newSubscription(filter, m.bufferSize)
	if err != nil {
		return "", nil, err
	}

	m.mu.Lock()
	m.subscriptions[sub.id] = sub
	m.mu.Unlock()

	return sub.id, sub.ch, nil
}

// Unsubscribe removes a subscription
func (m *SubscriptionManager) Unsubscribe(id string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[id]
	delete(m.subscriptions, id)
	m.mu.Unlock()

	if ok {
		if n := sub.Dropped(); n > 0 {
			m.logger.Debug("subscription closed with dropped lines", zap.String("subscription", id), zap.Uint64("dropped", n))
		}
		sub.Close()
	}
}

// Broadcast sends an entry to all subscribers
func (m *SubscriptionManager) Broadcast(entry domain.LogEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		sub.Send(entry)
	}
}

// Count returns the number of active subscriptions
func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes all subscriptions
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = make(map[string]*Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
