package monitoring

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CheckFunc reports whether a single dependency is usable.
type CheckFunc func(ctx context.Context) error

type dependencyCheck struct {
	name    string
	check   CheckFunc
	timeout time.Duration
}

// HealthChecker aggregates dependency checks for the readiness endpoint.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []dependencyCheck
}

// HealthStatus is the readiness report returned to callers.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, dependencyCheck{name: name, check: check, timeout: timeout})
}

// AddRedisCheck registers a ping against the session/credential store.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", timeout, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// AddMediaRootCheck verifies the segment directory exists; stream
// delivery fails without it.
func (h *HealthChecker) AddMediaRootCheck(mediaRoot string, timeout time.Duration) {
	h.AddCheck("media_root", timeout, func(ctx context.Context) error {
		info, err := os.Stat(mediaRoot)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return os.ErrInvalid
		}
		return nil
	})
}

// CheckAll runs every registered check and reports "healthy" only when all pass.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(h.checks)),
	}

	for _, dc := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, dc.timeout)
		err := dc.check(checkCtx)
		cancel()

		if err != nil {
			status.Status = "unhealthy"
			status.Checks[dc.name] = err.Error()
			continue
		}
		status.Checks[dc.name] = "healthy"
	}

	return status
}
