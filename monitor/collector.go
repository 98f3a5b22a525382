package monitor

import (
	"sync"
	"time"
)

// StageStats is a copy of one stage's counters
type StageStats struct {
	Received        int64     `json:"received"`
	Delivered       int64     `json:"delivered"`
	Retried         int64     `json:"retried"`
	Dropped         int64     `json:"dropped"`
	SourceErrors    int64     `json:"source_errors"`
	Reopened        int64     `json:"reopened"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorAt     time.Time `json:"last_error_at,omitempty"`
	LastDeliveredAt time.Time `json:"last_delivered_at,omitempty"`
}

// Summary is a snapshot of every stage
type Summary struct {
	Stages    map[string]StageStats `json:"stages"`
	StartedAt time.Time             `json:"started_at"`
	Uptime    time.Duration         `json:"uptime"`
}

// Collector counts stage events in memory. It implements bridge.Recorder.
type Collector struct {
	mu        sync.RWMutex
	stages    map[string]*StageStats
	startedAt time.Time
	now       func() time.Time
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		stages:    make(map[string]*StageStats),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// stage must be called with mu held
func (c *Collector) stage(name string) *StageStats {
	s, ok := c.stages[name]
	if !ok {
		s = &StageStats{}
		c.stages[name] = s
	}
	return s
}

func (c *Collector) update(name string, fn func(s *StageStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.stage(name))
}

func (c *Collector) failed(s *StageStats, err error) {
	s.LastErrorAt = c.now()
	if err != nil {
		s.LastError = err.Error()
	}
}

// Received records a message taken from a stage's source
func (c *Collector) Received(stage string) {
	c.update(stage, func(s *StageStats) { s.Received++ })
}

// Delivered records a message accepted by a stage's sink
func (c *Collector) Delivered(stage string) {
	c.update(stage, func(s *StageStats) {
		s.Delivered++
		s.LastDeliveredAt = c.now()
	})
}

// Retried records a failed delivery that will be attempted again
func (c *Collector) Retried(stage string, err error) {
	c.update(stage, func(s *StageStats) {
		s.Retried++
		c.failed(s, err)
	})
}

// Dropped records a message given up on
func (c *Collector) Dropped(stage string, err error) {
	c.update(stage, func(s *StageStats) {
		s.Dropped++
		c.failed(s, err)
	})
}

// SourceFailed records a failed receive
func (c *Collector) SourceFailed(stage string, err error) {
	c.update(stage, func(s *StageStats) {
		s.SourceErrors++
		c.failed(s, err)
	})
}

// Reopened records a stage rebuilding its source
func (c *Collector) Reopened(stage string) {
	c.update(stage, func(s *StageStats) { s.Reopened++ })
}

// Stage returns the counters of one stage
func (c *Collector) Stage(name string) StageStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s, ok := c.stages[name]; ok {
		return *s
	}
	return StageStats{}
}

// Snapshot copies all counters
func (c *Collector) Snapshot() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := Summary{
		Stages:    make(map[string]StageStats, len(c.stages)),
		StartedAt: c.startedAt,
		Uptime:    c.now().Sub(c.startedAt),
	}
	for name, s := range c.stages {
		summary.Stages[name] = *s
	}
	return summary
}

// Reset clears all counters
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = make(map[string]*StageStats)
}
