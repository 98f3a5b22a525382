package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// CheckerFunc is a function adapter for Checker
type CheckerFunc struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func NewCheckerFunc(name string, fn func(ctx context.Context) CheckResult) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (c *CheckerFunc) Check(ctx context.Context) CheckResult {
	return c.fn(ctx)
}

func (c *CheckerFunc) Name() string {
	return c.name
}

// StageChecker reports a stage unhealthy while its most recent failure is
// newer than its most recent delivery.
type StageChecker struct {
	collector *Collector
	stage     string
}

// NewStageChecker checks stage using the counters in collector
func NewStageChecker(collector *Collector, stage string) *StageChecker {
	return &StageChecker{collector: collector, stage: stage}
}

func (c *StageChecker) Name() string {
	return c.stage
}

func (c *StageChecker) Check(context.Context) CheckResult {
	s := c.collector.Stage(c.stage)

	result := CheckResult{
		Name:      c.stage,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"received":  s.Received,
			"delivered": s.Delivered,
			"dropped":   s.Dropped,
		},
	}

	switch {
	case s.LastErrorAt.IsZero():
	case s.LastErrorAt.After(s.LastDeliveredAt):
		result.Status = StatusUnhealthy
		result.Message = "Last attempt failed"
		result.Error = s.LastError
	case s.Dropped > 0:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%d messages dropped", s.Dropped)
	}

	return result
}

// BacklogChecker watches the queues between the two sides of the bridge
type BacklogChecker struct {
	backlog           func() (outbound, inbound int)
	warningThreshold  int
	criticalThreshold int
}

// NewBacklogChecker reports degraded above warning queued messages in
// either direction and unhealthy above critical.
func NewBacklogChecker(backlog func() (outbound, inbound int), warning, critical int) *BacklogChecker {
	return &BacklogChecker{
		backlog:           backlog,
		warningThreshold:  warning,
		criticalThreshold: critical,
	}
}

func (c *BacklogChecker) Name() string {
	return "backlog"
}

func (c *BacklogChecker) Check(context.Context) CheckResult {
	outbound, inbound := c.backlog()
	deepest := max(outbound, inbound)

	result := CheckResult{
		Name:      c.Name(),
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"outbound": outbound,
			"inbound":  inbound,
		},
	}

	if deepest > c.criticalThreshold {
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("Backlog too deep: %d", deepest)
	} else if deepest > c.warningThreshold {
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("Backlog growing: %d", deepest)
	}

	return result
}

// Registry manages health checks
type Registry struct {
	checkers map[string]Checker
	metadata map[string]interface{}
	mu       sync.RWMutex
}

// NewRegistry creates a new health check registry
func NewRegistry() *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		metadata: make(map[string]interface{}),
	}
}

// Register adds a health checker
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[checker.Name()] = checker
}

// SetMetadata sets global metadata
func (r *Registry) SetMetadata(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[key] = value
}

// Check executes all registered health checks concurrently
func (r *Registry) Check(ctx context.Context) OverallHealth {
	start := time.Now()

	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	metadata := make(map[string]interface{}, len(r.metadata))
	for k, v := range r.metadata {
		metadata[k] = v
	}
	r.mu.RUnlock()

	type checkResult struct {
		name   string
		result CheckResult
	}

	resultChan := make(chan checkResult, len(checkers))
	for name, checker := range checkers {
		go func(name string, checker Checker) {
			resultChan <- checkResult{name: name, result: checker.Check(ctx)}
		}(name, checker)
	}

	checks := make(map[string]CheckResult, len(checkers))
	overall := StatusHealthy

collect:
	for range checkers {
		select {
		case res := <-resultChan:
			checks[res.name] = res.result
			overall = worst(overall, res.result.Status)
		case <-ctx.Done():
			for name := range checkers {
				if _, ok := checks[name]; !ok {
					checks[name] = CheckResult{
						Name:      name,
						Status:    StatusUnhealthy,
						Message:   "Check timed out",
						Timestamp: time.Now(),
						Error:     ctx.Err().Error(),
					}
				}
			}
			overall = StatusUnhealthy
			break collect
		}
	}

	return OverallHealth{
		Status:    overall,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
}

func worst(a, b Status) Status {
	if a == StatusUnhealthy || b == StatusUnhealthy {
		return StatusUnhealthy
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Handler serves the registry as JSON. Degraded still answers 200.
func (r *Registry) Handler(timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), timeout)
		defer cancel()

		health := r.Check(ctx)

		statusCode := http.StatusOK
		if health.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		body, err := json.MarshalIndent(health, "", "  ")
		if err != nil {
			http.Error(w, "Failed to encode health response", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		w.Write(body)
	})
}

// LivenessHandler answers 200 for as long as the process serves HTTP
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("alive"))
	}
}
