// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import "fmt"

// Quality excludes any candidate whose 1h error rate meets or exceeds the
// configured threshold; agents with no recorded history pass through
// untouched (their view reports the quality store's never-exclude default).
type Quality struct {
	threshold float64
}

func NewQuality(threshold float64) *Quality {
	return &Quality{threshold: threshold}
}

func (q *Quality) Name() string                { return "QualityReconciler" }
func (q *Quality) FailurePolicy() FailurePolicy { return FailOpen }

func (q *Quality) Reconcile(intent *RoutingIntent, views map[string]AgentView) error {
	for _, id := range append([]string{}, intent.CandidateAgents...) {
		v, ok := views[id]
		if !ok {
			continue
		}
		if v.ErrorRate1h >= q.threshold {
			intent.exclude(id, q.Name(), fmt.Sprintf("error rate %.2f exceeds threshold %.2f", v.ErrorRate1h, q.threshold),
				"wait for error rate to recover or select another backend")
		}
	}
	return nil
}
