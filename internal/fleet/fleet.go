// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package fleet is a passive analyzer over request history that produces
// advisory pre-warm recommendations; it never changes routing outcomes,
// it only surfaces suggestions at GET /v1/fleet/recommendations.
package fleet

import (
	"context"
	"sort"
	"sync"
	"time"

	"nexus/internal/logging"
)

// Config controls fleet recommendation thresholds.
type Config struct {
	Enabled              bool
	MinSampleDays        int
	MinRequestCount      int
	AnalysisIntervalSecs int
	MaxRecommendations   int
}

// Recommendation suggests pre-warming a model on a backend ahead of
// anticipated demand.
type Recommendation struct {
	Model        string
	BackendID    string
	RequestCount int
	Reason       string
}

// sample is one observed (model, backend) request.
type sample struct {
	model     string
	backendID string
	at        time.Time
}

// Analyzer accumulates request samples and periodically derives
// recommendations from request-count frequency.
type Analyzer struct {
	cfg Config
	mu  sync.Mutex

	samples []sample
	recs    []Recommendation

	log *logging.Logger
}

func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg, log: logging.New("fleet")}
}

// Observe records one routed request for later analysis.
func (a *Analyzer) Observe(model, backendID string) {
	if !a.cfg.Enabled {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = append(a.samples, sample{model: model, backendID: backendID, at: time.Now()})
}

// Recommendations returns the most recently computed advisory list,
// capped at MaxRecommendations.
func (a *Analyzer) Recommendations() []Recommendation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Recommendation, len(a.recs))
	copy(out, a.recs)
	return out
}

// analyze derives recommendations from accumulated samples: only samples
// from the last MinSampleDays days are counted, and every (model, backend)
// pair with at least MinRequestCount of them is recommended for pre-warming.
func (a *Analyzer) analyze() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(a.cfg.MinSampleDays) * 24 * time.Hour)
	counts := make(map[[2]string]int)
	earliest := make(map[[2]string]time.Time)

	for _, s := range a.samples {
		if s.at.Before(cutoff) {
			continue
		}
		key := [2]string{s.model, s.backendID}
		counts[key]++
		if t, ok := earliest[key]; !ok || s.at.Before(t) {
			earliest[key] = s.at
		}
	}

	var recs []Recommendation
	for key, count := range counts {
		if count < a.cfg.MinRequestCount {
			continue
		}
		recs = append(recs, Recommendation{
			Model: key[0], BackendID: key[1], RequestCount: count,
			Reason: "sustained demand over sample window",
		})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].RequestCount > recs[j].RequestCount })
	if len(recs) > a.cfg.MaxRecommendations {
		recs = recs[:a.cfg.MaxRecommendations]
	}
	a.recs = recs
}

// AnalyzeNow runs one analysis pass immediately, bypassing the periodic
// ticker; exposed the way health.Checker.ProbeOnce exposes a manual
// recheck outside the background loop.
func (a *Analyzer) AnalyzeNow() {
	a.analyze()
}

// Run starts the periodic analysis loop.
func (a *Analyzer) Run(ctx context.Context) {
	if !a.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(time.Duration(a.cfg.AnalysisIntervalSecs) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.analyze()
			a.log.Debug("", "fleet analysis complete", map[string]interface{}{"recommendations": len(a.recs)})
		}
	}
}
