// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package health periodically probes every registered backend and drives
// its status through Unknown -> Healthy/Unhealthy with hysteresis,
// generalized to Nexus's richer per-backend state.
package health

import (
	"context"
	"sync"
	"time"

	"nexus/internal/agent"
	"nexus/internal/logging"
	"nexus/internal/registry"
)

// Config controls the probe interval, per-check timeout, and hysteresis
// thresholds.
type Config struct {
	IntervalSeconds   int
	TimeoutSeconds    int
	FailureThreshold  int
	RecoveryThreshold int
}

func DefaultConfig() Config {
	return Config{IntervalSeconds: 30, TimeoutSeconds: 5, FailureThreshold: 3, RecoveryThreshold: 2}
}

// Checker owns the per-backend consecutive failure/success counters and
// the periodic probe loop.
type Checker struct {
	cfg Config
	reg *registry.Registry
	log *logging.Logger

	mu       sync.Mutex
	failures map[string]int
	successes map[string]int
}

// New creates a Checker bound to reg.
func New(cfg Config, reg *registry.Registry) *Checker {
	return &Checker{
		cfg:       cfg,
		reg:       reg,
		log:       logging.New("health"),
		failures:  make(map[string]int),
		successes: make(map[string]int),
	}
}

// Run starts the periodic probe loop; it returns when ctx is cancelled,
// guaranteeing termination within one in-flight check.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.IntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeAll(ctx)
		}
	}
}

func (c *Checker) probeAll(ctx context.Context) {
	for _, snap := range c.reg.GetAllBackends() {
		a, ok := c.reg.GetAgent(snap.ID)
		if !ok {
			continue
		}
		c.probeOne(ctx, snap.ID, a)
	}
}

// ProbeOnce runs a single health check for one backend; exported so
// callers (e.g. a manual "recheck now" admin action) can reuse it.
func (c *Checker) ProbeOnce(ctx context.Context, id string) {
	a, ok := c.reg.GetAgent(id)
	if !ok {
		return
	}
	c.probeOne(ctx, id, a)
}

func (c *Checker) probeOne(ctx context.Context, id string, a agent.Agent) {
	checkCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	start := time.Now()
	result, err := a.HealthCheck(checkCtx)
	elapsed := time.Since(start)

	if err != nil || !result.Healthy {
		c.recordFailure(id, err)
		return
	}
	c.recordSuccess(id, elapsed, a, checkCtx)
}

func (c *Checker) recordFailure(id string, err error) {
	c.mu.Lock()
	c.failures[id]++
	c.successes[id] = 0
	failCount := c.failures[id]
	c.mu.Unlock()

	cur, ok := c.reg.GetBackend(id)
	if !ok {
		return
	}

	switch cur.Status {
	case registry.StatusUnknown:
		_ = c.reg.UpdateStatus(id, registry.StatusUnhealthy)
	case registry.StatusHealthy:
		if failCount >= c.cfg.FailureThreshold {
			_ = c.reg.UpdateStatus(id, registry.StatusUnhealthy)
		}
	}

	fields := map[string]interface{}{"backend_id": id, "consecutive_failures": failCount}
	if err != nil {
		fields["error"] = err.Error()
	}
	c.log.Warn("", "health check failed", fields)
}

func (c *Checker) recordSuccess(id string, latency time.Duration, a agent.Agent, ctx context.Context) {
	c.mu.Lock()
	c.successes[id]++
	c.failures[id] = 0
	successCount := c.successes[id]
	c.mu.Unlock()

	cur, ok := c.reg.GetBackend(id)
	if !ok {
		return
	}

	switch cur.Status {
	case registry.StatusUnknown:
		_ = c.reg.UpdateStatus(id, registry.StatusHealthy)
	case registry.StatusUnhealthy:
		if successCount >= c.cfg.RecoveryThreshold {
			_ = c.reg.UpdateStatus(id, registry.StatusHealthy)
		}
	}

	c.reg.RecordLatency(id, uint32(latency.Milliseconds()))

	if models, err := a.ListModels(ctx); err == nil {
		converted := make([]registry.Model, 0, len(models))
		for _, m := range models {
			converted = append(converted, registry.Model{
				ID:               m.ID,
				DisplayName:      m.DisplayName,
				ContextLength:    m.ContextLength,
				SupportsVision:   m.SupportsVision,
				SupportsTools:    m.SupportsTools,
				SupportsJSONMode: m.SupportsJSONMode,
				MaxOutputTokens:  m.MaxOutputTokens,
			})
		}
		_ = c.reg.UpdateModels(id, converted)
	}

	c.log.Debug("", "health check succeeded", map[string]interface{}{
		"backend_id": id, "latency_ms": latency.Milliseconds(),
	})
}
