package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

const defaultTimeout = 5 * time.Second

// CheckFunc probes one component. A nil error means the component is usable.
type CheckFunc func(ctx context.Context) error

// HealthResult represents the result of a health check
type HealthResult struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message"`
	Critical bool         `json:"critical"`
	Duration string       `json:"duration"`
}

// Report is the outcome of one pass over every registered check.
type Report struct {
	Status         HealthStatus            `json:"status"`
	Checks         map[string]HealthResult `json:"checks"`
	CriticalIssues []string                `json:"critical_issues,omitempty"`
	CheckedAt      time.Time               `json:"checked_at"`
}

type check struct {
	name     string
	fn       CheckFunc
	critical bool
	timeout  time.Duration
}

// Checker runs named component checks concurrently. A failing critical check makes the
// report unhealthy, any other failure only degrades it. A check still running at its
// timeout counts as failed.
type Checker struct {
	logger *logrus.Logger
	mu     sync.RWMutex
	checks map[string]check
}

// NewChecker creates an empty checker
func NewChecker(logger *logrus.Logger) *Checker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Checker{
		logger: logger,
		checks: make(map[string]check),
	}
}

// RegisterCheck adds or replaces a check. A zero timeout uses the default.
func (c *Checker) RegisterCheck(name string, critical bool, timeout time.Duration, fn CheckFunc) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{name: name, fn: fn, critical: critical, timeout: timeout}
}

// Names lists the registered checks in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every check and aggregates the results.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]check, 0, len(c.checks))
	for _, ch := range c.checks {
		checks = append(checks, ch)
	}
	c.mu.RUnlock()

	results := make([]HealthResult, len(checks))
	var wg sync.WaitGroup
	for i, ch := range checks {
		wg.Add(1)
		go func(i int, ch check) {
			defer wg.Done()
			results[i] = c.execute(ctx, ch)
		}(i, ch)
	}
	wg.Wait()

	report := Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]HealthResult, len(checks)),
		CheckedAt: time.Now().UTC(),
	}
	for i, ch := range checks {
		result := results[i]
		report.Checks[ch.name] = result
		if result.Status != StatusUnhealthy {
			continue
		}
		if ch.critical {
			report.CriticalIssues = append(report.CriticalIssues, ch.name)
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	if len(report.CriticalIssues) > 0 {
		sort.Strings(report.CriticalIssues)
		report.Status = StatusUnhealthy
	}
	return report
}

func (c *Checker) execute(ctx context.Context, ch check) HealthResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, ch.timeout)
	defer cancel()

	// buffered: a check abandoned at its timeout never blocks on send
	done := make(chan error, 1)
	go func() {
		done <- ch.fn(checkCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-checkCtx.Done():
		err = fmt.Errorf("check timed out after %s: %w", ch.timeout, checkCtx.Err())
	}

	result := HealthResult{Status: StatusHealthy, Message: "OK", Critical: ch.critical}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	result.Duration = time.Since(start).String()

	c.logger.WithFields(logrus.Fields{
		"check":    ch.name,
		"status":   result.Status,
		"duration": result.Duration,
	}).Debug("Health check completed")

	return result
}
