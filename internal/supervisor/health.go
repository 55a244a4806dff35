package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/charliek/minerd/internal/domain"
)

// HealthProbe polls the node's JSON-RPC endpoint for its latest block height.
// After Retries consecutive failures the worker is considered hung and
// Unhealthy is closed. A probe lives for exactly one run.
type HealthProbe struct {
	mu sync.RWMutex

	config domain.HealthConfig
	client *http.Client

	status              domain.HealthStatus
	lastCheck           time.Time
	lastHeight          uint64
	lastError           string
	consecutiveFailures int

	unhealthy     chan struct{}
	unhealthyOnce sync.Once

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthProbe creates a probe. Defaults are applied to zero fields.
func NewHealthProbe(config domain.HealthConfig) *HealthProbe {
	config = config.WithDefaults()

	return &HealthProbe{
		config:    config,
		client:    &http.Client{Timeout: config.Timeout},
		status:    domain.HealthStatusUnknown,
		unhealthy: make(chan struct{}),
	}
}

// Start begins probing after the start period. It stops when ctx is done or Stop is called.
func (h *HealthProbe) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx)
	}()
}

// Stop stops the probe and waits for its goroutine
func (h *HealthProbe) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

// Unhealthy is closed once the failure threshold is reached
func (h *HealthProbe) Unhealthy() <-chan struct{} {
	return h.unhealthy
}

// State returns the current health state
func (h *HealthProbe) State() domain.HealthState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return domain.HealthState{
		Status:              h.status,
		LastCheck:           h.lastCheck,
		LastHeight:          h.lastHeight,
		LastError:           h.lastError,
		ConsecutiveFailures: h.consecutiveFailures,
	}
}

func (h *HealthProbe) run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(h.config.StartPeriod):
	}

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	h.runCheck(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runCheck(ctx)
		}
	}
}

func (h *HealthProbe) runCheck(ctx context.Context) {
	height, err := h.query(ctx)
	if ctx.Err() != nil {
		// Cancelled mid-request; not the node's fault.
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()

	if err != nil {
		h.lastError = err.Error()
		h.consecutiveFailures++
		if h.consecutiveFailures >= h.config.Retries {
			h.status = domain.HealthStatusUnhealthy
			h.unhealthyOnce.Do(func() { close(h.unhealthy) })
		}
		return
	}

	h.lastError = ""
	h.lastHeight = height
	h.consecutiveFailures = 0
	h.status = domain.HealthStatusHealthy
}

// query performs one JSON-RPC call and returns the reported height
func (h *HealthProbe) query(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	body, err := json2.EncodeClientRequest(h.config.Method, []any{})
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rpc returned HTTP %d", resp.StatusCode)
	}

	var height uint64
	if err := json2.DecodeClientResponse(resp.Body, &height); err != nil {
		return 0, fmt.Errorf("%s: %w", h.config.Method, err)
	}
	return height, nil
}
