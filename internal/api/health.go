package api

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Details   interface{} `json:"details,omitempty"`
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthManager manages health checks
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// RunHealthChecks runs all registered health checks and returns their results
func (hm *HealthManager) RunHealthChecks(ctx context.Context) map[string]HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := make(map[string]HealthStatus, len(hm.checkers))
	for name, checker := range hm.checkers {
		status[name] = checker.Check(ctx)
	}
	return status
}

// StorageHealthChecker reports the engine unhealthy while a flush failure is outstanding
type StorageHealthChecker struct {
	store Store
}

// NewStorageHealthChecker creates a new storage health checker
func NewStorageHealthChecker(store Store) *StorageHealthChecker {
	return &StorageHealthChecker{store: store}
}

// Check implements HealthChecker
func (c *StorageHealthChecker) Check(ctx context.Context) HealthStatus {
	stats := c.store.Stats()
	if stats.LastFlushError != "" {
		return HealthStatus{
			Status:    "error",
			Message:   "last flush failed",
			Timestamp: time.Now(),
			Details:   stats,
		}
	}

	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Details:   stats,
	}
}

// HealthCheckHandler handles GET /health requests
func (hm *HealthManager) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := hm.RunHealthChecks(r.Context())

	// Determine overall status
	overallStatus := "ok"
	for _, s := range status {
		if s.Status != "ok" {
			overallStatus = "error"
			break
		}
	}

	code := http.StatusOK
	if overallStatus == "error" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":     overallStatus,
		"timestamp":  time.Now(),
		"components": status,
	})
}
