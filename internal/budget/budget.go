// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package budget tracks process-lifetime spend against a monthly limit and
// classifies the current status as Normal/SoftLimit/HardLimit. Persistence
// (a repository layer, historical usage records) is deliberately absent:
// Nexus's budget state is process-lifetime only, a restart zeroes it.
package budget

import (
	"context"
	"sync/atomic"
	"time"

	"nexus/internal/logging"
	"nexus/internal/metrics"
)

// HardLimitAction decides what happens to cloud-kind traffic once spend
// crosses the hard limit.
type HardLimitAction string

const (
	ActionLocalOnly HardLimitAction = "local-only"
	ActionQueue     HardLimitAction = "queue"
	ActionReject    HardLimitAction = "reject"
)

// Status is the budget's current classification.
type Status struct {
	State        string // "normal" | "soft_limit" | "hard_limit"
	Percent      float64
	CurrentCents uint64
	LimitCents   uint64
}

// Config controls spend limits and throttling behavior.
type Config struct {
	Enabled              bool
	MonthlyLimitUSD      float64
	SoftLimitPercent     float64
	HardLimitAction      HardLimitAction
	BillingCycleStartDay int
}

// State is the process-wide atomic spend counter and classifier.
type State struct {
	cfg           Config
	spendingCents atomic.Uint64
	log           *logging.Logger
}

// New creates a State from cfg.
func New(cfg Config) *State {
	return &State{cfg: cfg, log: logging.New("budget")}
}

// AddSpend atomically adds cents of new spend and returns the new total.
func (s *State) AddSpend(cents uint64) uint64 {
	total := s.spendingCents.Add(cents)
	metrics.BudgetSpendCents.Set(float64(total))
	return total
}

// AddSpendUSD is a convenience wrapper that converts dollars to cents.
func (s *State) AddSpendUSD(usd float64) uint64 {
	if usd <= 0 {
		return s.spendingCents.Load()
	}
	return s.AddSpend(uint64(usd*100 + 0.5))
}

// CurrentCents returns the current spend counter.
func (s *State) CurrentCents() uint64 {
	return s.spendingCents.Load()
}

// BudgetStatus computes {Normal | SoftLimit | HardLimit} against the
// configured monthly limit.
func (s *State) BudgetStatus() Status {
	limitCents := uint64(s.cfg.MonthlyLimitUSD * 100)
	current := s.spendingCents.Load()

	if !s.cfg.Enabled || limitCents == 0 {
		return Status{State: "normal", CurrentCents: current, LimitCents: limitCents}
	}

	pct := float64(current) / float64(limitCents) * 100
	switch {
	case current >= limitCents:
		return Status{State: "hard_limit", Percent: pct, CurrentCents: current, LimitCents: limitCents}
	case pct >= s.cfg.SoftLimitPercent:
		return Status{State: "soft_limit", Percent: pct, CurrentCents: current, LimitCents: limitCents}
	default:
		return Status{State: "normal", Percent: pct, CurrentCents: current, LimitCents: limitCents}
	}
}

// HardLimitAction reports the configured action for hard-limit handling.
func (s *State) HardLimitAction() HardLimitAction {
	return s.cfg.HardLimitAction
}

// Run starts the billing-cycle reset loop: once per hour it checks whether
// today is the configured billing_cycle_start_day and, if so, zeroes spend
// (at most once per calendar month).
func (s *State) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	lastResetMonth := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if now.Day() == s.cfg.BillingCycleStartDay && int(now.Month()) != lastResetMonth {
				s.spendingCents.Store(0)
				metrics.BudgetSpendCents.Set(0)
				lastResetMonth = int(now.Month())
				s.log.Info("", "budget cycle reset", map[string]interface{}{"day": now.Day()})
			}
		}
	}
}
