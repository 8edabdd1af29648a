// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package registry

import (
	"fmt"
	"sort"
	"sync"

	"nexus/internal/agent"
	"nexus/internal/logging"
	"nexus/internal/metrics"
)

// Discoverer is the narrow interface a real mDNS watcher would implement;
// mDNS discovery itself is out of scope here, but the registry accepts
// announcements/retractions through this shape so one can be plugged in.
type Discoverer interface {
	Announcements() <-chan BackendAnnounced
	Retractions() <-chan BackendRetracted
}

// BackendAnnounced is emitted when a discovery source finds a new backend.
type BackendAnnounced struct {
	ID   string
	URL  string
	Kind agent.Kind
}

// BackendRetracted is emitted when a discovery source loses a backend.
type BackendRetracted struct {
	ID string
}

// Error is returned by Registry operations that fail for a structural
// reason (duplicate id, unknown id) rather than an infrastructure error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("registry: %s: %s", e.Code, e.Message) }

const (
	ErrDuplicateID = "duplicate_id"
	ErrNotFound    = "not_found"
)

// entry bundles a Backend with the Agent that serves it; entries live for
// exactly as long as the Backend does.
type entry struct {
	mu      sync.RWMutex
	backend *Backend
	agent   agent.Agent
}

// Registry is the authoritative mapping from backend id to (Backend, Agent).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     *logging.Logger
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     logging.New("registry"),
	}
}

// AddBackendWithAgent registers a new Backend/Agent pair. Rejects duplicate ids.
func (r *Registry) AddBackendWithAgent(b *Backend, a agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[b.ID]; exists {
		return &Error{Code: ErrDuplicateID, Message: b.ID}
	}
	b.status = StatusUnknown
	r.entries[b.ID] = &entry{backend: b, agent: a}
	r.log.Info("", "backend registered", map[string]interface{}{"backend_id": b.ID, "kind": string(b.Kind)})
	return nil
}

// RemoveBackend removes a backend and its agent from both maps.
func (r *Registry) RemoveBackend(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; !exists {
		return &Error{Code: ErrNotFound, Message: id}
	}
	delete(r.entries, id)
	r.log.Info("", "backend removed", map[string]interface{}{"backend_id": id})
	return nil
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// GetBackend returns a snapshot of one backend.
func (r *Registry) GetBackend(id string) (Snapshot, bool) {
	e, ok := r.get(id)
	if !ok {
		return Snapshot{}, false
	}
	return snapshot(e), true
}

// GetAgent returns the live Agent for a backend id.
func (r *Registry) GetAgent(id string) (agent.Agent, bool) {
	e, ok := r.get(id)
	if !ok {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.agent, true
}

// GetAllBackends returns a value-copy snapshot of every registered backend,
// safe to iterate without holding any registry lock. Snapshots may be
// stale by the time the caller acts on them.
func (r *Registry) GetAllBackends() []Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func snapshot(e *entry) Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b := e.backend
	models := make([]Model, len(b.models))
	copy(models, b.models)
	meta := make(map[string]string, len(b.Metadata))
	for k, v := range b.Metadata {
		meta[k] = v
	}
	var op *LifecycleOperation
	if b.currentOp != nil {
		cp := *b.currentOp
		op = &cp
	}
	return Snapshot{
		ID:              b.ID,
		DisplayName:     b.DisplayName,
		URL:             b.URL,
		Kind:            b.Kind,
		Status:          b.status,
		Models:          models,
		Priority:        b.Priority,
		DiscoverySource: b.DiscoverySource,
		Zone:            b.Zone,
		Tier:            b.Tier,
		Metadata:        meta,
		CurrentOp:       op,
		PendingRequests: b.pendingRequests.Load(),
		TotalRequests:   b.totalRequests.Load(),
		AvgLatencyMS:    b.avgLatencyMS.Load(),
	}
}

// UpdateStatus sets a backend's health status.
func (r *Registry) UpdateStatus(id string, status Status) error {
	e, ok := r.get(id)
	if !ok {
		return &Error{Code: ErrNotFound, Message: id}
	}
	e.mu.Lock()
	prev := e.backend.status
	e.backend.status = status
	e.mu.Unlock()
	if prev != status {
		r.log.Info("", "backend status transition", map[string]interface{}{
			"backend_id": id, "from": string(prev), "to": string(status),
		})
	}
	return nil
}

// UpdateModels replaces a backend's advertised model list.
func (r *Registry) UpdateModels(id string, models []Model) error {
	e, ok := r.get(id)
	if !ok {
		return &Error{Code: ErrNotFound, Message: id}
	}
	e.mu.Lock()
	e.backend.models = models
	e.mu.Unlock()
	return nil
}

// RemoveModelFromBackend drops one model from a backend's advertised list.
func (r *Registry) RemoveModelFromBackend(id, modelID string) error {
	e, ok := r.get(id)
	if !ok {
		return &Error{Code: ErrNotFound, Message: id}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.backend.models[:0]
	for _, m := range e.backend.models {
		if m.ID != modelID {
			out = append(out, m)
		}
	}
	e.backend.models = out
	return nil
}

// UpdateOperation sets or clears a backend's current lifecycle operation.
func (r *Registry) UpdateOperation(id string, op *LifecycleOperation) error {
	e, ok := r.get(id)
	if !ok {
		return &Error{Code: ErrNotFound, Message: id}
	}
	e.mu.Lock()
	e.backend.currentOp = op
	e.mu.Unlock()
	return nil
}

// IncrementPending atomically increments a backend's pending-request counter.
func (r *Registry) IncrementPending(id string) {
	if e, ok := r.get(id); ok {
		n := e.backend.pendingRequests.Add(1)
		e.backend.totalRequests.Add(1)
		metrics.BackendPending.WithLabelValues(id).Set(float64(n))
	}
}

// DecrementPending atomically decrements a backend's pending-request counter.
func (r *Registry) DecrementPending(id string) {
	if e, ok := r.get(id); ok {
		for {
			cur := e.backend.pendingRequests.Load()
			if cur == 0 {
				return
			}
			if e.backend.pendingRequests.CompareAndSwap(cur, cur-1) {
				metrics.BackendPending.WithLabelValues(id).Set(float64(cur - 1))
				return
			}
		}
	}
}

// RecordLatency folds an observed latency sample into avg_latency_ms using
// a simple running average (matches the health checker's single-writer
// update pattern; concurrent writers race benignly, acceptable per design).
func (r *Registry) RecordLatency(id string, sampleMS uint32) {
	e, ok := r.get(id)
	if !ok {
		return
	}
	prev := e.backend.avgLatencyMS.Load()
	var next uint32
	if prev == 0 {
		next = sampleMS
	} else {
		next = uint32((uint64(prev) + uint64(sampleMS)) / 2)
	}
	e.backend.avgLatencyMS.Store(next)
}

// Count returns the number of registered backends.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ApplyAnnouncement adds a backend discovered via a Discoverer; it is a
// no-op if the id is already registered (static config takes precedence).
func (r *Registry) ApplyAnnouncement(ev BackendAnnounced, a agent.Agent) {
	b := &Backend{ID: ev.ID, URL: ev.URL, Kind: ev.Kind, DiscoverySource: SourceMDNS, Tier: 1}
	_ = r.AddBackendWithAgent(b, a)
}

// ApplyRetraction removes a backend discovered via a Discoverer.
func (r *Registry) ApplyRetraction(ev BackendRetracted) {
	_ = r.RemoveBackend(ev.ID)
}
