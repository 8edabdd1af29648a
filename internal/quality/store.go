// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package quality tracks per-backend request outcomes in a rolling 24h
// window and recomputes the aggregate figures the Quality reconciler and
// the stats endpoint read.
package quality

import (
	"context"
	"sync"
	"time"

	"nexus/internal/logging"
)

const (
	maxEntriesPerAgent = 100000
	window24h          = 24 * time.Hour
	window1h           = time.Hour
)

// Outcome is one recorded request result.
type Outcome struct {
	Timestamp time.Time
	Success   bool
	TTFTMillis int64
}

// Aggregate is the recomputed summary for one backend.
type Aggregate struct {
	ErrorRate1h           float64
	AvgTTFTMillis         float64
	SuccessRate24h        float64
	LastFailureTimestamp  time.Time
	RequestCount1h        int
}

// defaultAggregate is returned for backends with no recorded history: they
// must never be excluded by the Quality reconciler.
var defaultAggregate = Aggregate{ErrorRate1h: 0, SuccessRate24h: 1}

// Store is a per-backend bounded deque of Outcomes plus the last computed
// Aggregate, refreshed by a periodic recompute pass.
type Store struct {
	mu      sync.RWMutex
	buffers map[string][]Outcome
	aggs    map[string]Aggregate
	log     *logging.Logger
}

func New() *Store {
	return &Store{
		buffers: make(map[string][]Outcome),
		aggs:    make(map[string]Aggregate),
		log:     logging.New("quality"),
	}
}

// RecordOutcome appends one outcome to the agent's buffer, trimming from
// the front if the buffer would exceed maxEntriesPerAgent.
func (s *Store) RecordOutcome(agentID string, success bool, ttftMillis int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffers[agentID]
	buf = append(buf, Outcome{Timestamp: time.Now(), Success: success, TTFTMillis: ttftMillis})
	if len(buf) > maxEntriesPerAgent {
		buf = buf[len(buf)-maxEntriesPerAgent:]
	}
	s.buffers[agentID] = buf
}

// Get returns the last computed aggregate for an agent, or the
// never-exclude default if it has no history.
func (s *Store) Get(agentID string) Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if agg, ok := s.aggs[agentID]; ok {
		return agg
	}
	return defaultAggregate
}

// RecomputeAll prunes entries older than 24h and recomputes the aggregate
// for every agent with a buffer. Idempotent in the limit: repeated calls
// with no new outcomes converge to the same figures.
func (s *Store) RecomputeAll() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for agentID, buf := range s.buffers {
		cutoff := now.Add(-window24h)
		pruned := buf[:0]
		for _, o := range buf {
			if o.Timestamp.After(cutoff) {
				pruned = append(pruned, o)
			}
		}
		s.buffers[agentID] = pruned
		s.aggs[agentID] = compute(pruned, now)
	}
}

func compute(buf []Outcome, now time.Time) Aggregate {
	if len(buf) == 0 {
		return defaultAggregate
	}

	oneHourAgo := now.Add(-window1h)
	var (
		total1h, fail1h int
		ttftSum         float64
		ttftCount       int
		total24h, ok24h int
		lastFailure     time.Time
	)

	for _, o := range buf {
		if o.Timestamp.After(oneHourAgo) {
			total1h++
			if !o.Success {
				fail1h++
			}
			if o.Success {
				ttftSum += float64(o.TTFTMillis)
				ttftCount++
			}
		}
		total24h++
		if o.Success {
			ok24h++
		} else if o.Timestamp.After(lastFailure) {
			lastFailure = o.Timestamp
		}
	}

	agg := Aggregate{RequestCount1h: total1h, LastFailureTimestamp: lastFailure}
	if total1h > 0 {
		agg.ErrorRate1h = float64(fail1h) / float64(total1h)
	}
	if ttftCount > 0 {
		agg.AvgTTFTMillis = ttftSum / float64(ttftCount)
	}
	if total24h > 0 {
		agg.SuccessRate24h = float64(ok24h) / float64(total24h)
	} else {
		agg.SuccessRate24h = 1
	}
	return agg
}

// Run starts the periodic recompute loop at the configured interval.
func (s *Store) Run(ctx context.Context, intervalSeconds int) {
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RecomputeAll()
			s.log.Debug("", "quality metrics recomputed", map[string]interface{}{"agents": len(s.aggs)})
		}
	}
}
