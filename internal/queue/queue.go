// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package queue implements the bounded dual-priority holding area used
// when the pipeline rejects a request on capacity grounds, backed by a
// channel pair and a CAS-guarded shared depth counter.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"nexus/internal/apierror"
	"nexus/internal/logging"
	"nexus/internal/metrics"
)

// Priority is a queued request's dequeue priority class.
type Priority int

const (
	Normal Priority = iota
	High
)

// Request is one holding-area entry. ReplyCh is single-use: exactly one
// value is ever sent on it, a Reply.
type Request struct {
	Requirements interface{} // routing.RequestRequirements, kept as interface{} to avoid an import cycle
	TierMode     interface{} // routing.TierMode, same rationale
	Priority     Priority
	EnqueuedAt   time.Time
	ReplyCh      chan Reply
}

// Reply is what the drain loop sends back through a Request's ReplyCh.
type Reply struct {
	Handled bool
	Err     *apierror.Error
}

// Full is returned by Enqueue when the shared depth bound is already at max_size.
type Full struct {
	MaxSize int
}

func (f *Full) Error() string { return "queue full" }

// Queue is two bounded channels (high, normal) guarded by one shared
// atomic depth counter via a CAS loop, matching the original design's
// "try_dequeue drains high first" semantics.
type Queue struct {
	maxSize       int
	maxWaitSeconds int
	high          chan *Request
	normal        chan *Request
	depth         atomic.Int64
	log           *logging.Logger
}

func New(maxSize, maxWaitSeconds int) *Queue {
	return &Queue{
		maxSize:        maxSize,
		maxWaitSeconds: maxWaitSeconds,
		high:           make(chan *Request, maxSize),
		normal:         make(chan *Request, maxSize),
		log:            logging.New("queue"),
	}
}

// Enqueue pushes req onto its priority channel if the shared depth bound
// allows it, using a CAS loop to guard the bound across priorities.
func (q *Queue) Enqueue(req *Request) error {
	for {
		cur := q.depth.Load()
		if cur >= int64(q.maxSize) {
			return &Full{MaxSize: q.maxSize}
		}
		if q.depth.CompareAndSwap(cur, cur+1) {
			break
		}
	}

	ch := q.normal
	if req.Priority == High {
		ch = q.high
	}
	select {
	case ch <- req:
		return nil
	default:
		q.depth.Add(-1)
		return &Full{MaxSize: q.maxSize}
	}
}

// TryDequeue drains High first, then Normal; returns nil if both are empty.
func (q *Queue) TryDequeue() *Request {
	select {
	case req := <-q.high:
		q.depth.Add(-1)
		return req
	default:
	}
	select {
	case req := <-q.normal:
		q.depth.Add(-1)
		return req
	default:
		return nil
	}
}

// Depth returns the current shared depth.
func (q *Queue) Depth() int64 { return q.depth.Load() }

// RetryFunc re-runs the router for a queued request; returns handled=true on
// success, handled=false with a nil error if capacity is still unavailable,
// or a non-nil error that is sent back to the waiting caller.
type RetryFunc func(req *Request) (handled bool, err *apierror.Error)

// Run starts the background drain loop: it wakes every 50ms, and for each
// available request retries via retry; on continued rejection it
// re-enqueues (preserving EnqueuedAt) unless the deadline has elapsed, in
// which case it replies with a 503 queue_timeout error. No Retry-After
// header is attached to that reply.
func (q *Queue) Run(ctx context.Context, retry RetryFunc) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.drainWithReject()
			return
		case <-ticker.C:
			q.drainOnce(retry)
			metrics.QueueDepth.Set(float64(q.Depth()))
		}
	}
}

// drainOnce retries every currently queued request once, in FIFO-within-
// priority order, re-enqueueing handled==false responses and timing out
// any request whose deadline has elapsed.
func (q *Queue) drainOnce(retry RetryFunc) {
	for n := q.Depth(); n > 0; n-- {
		req := q.TryDequeue()
		if req == nil {
			return
		}

		deadline := req.EnqueuedAt.Add(time.Duration(q.maxWaitSeconds) * time.Second)
		if time.Now().After(deadline) {
			req.ReplyCh <- Reply{Handled: false, Err: apierror.New(503, apierror.CodeQueueTimeout, "request exceeded max_wait_seconds in queue")}
			continue
		}

		handled, apiErr := retry(req)
		if handled {
			req.ReplyCh <- Reply{Handled: true}
			continue
		}
		if apiErr != nil {
			req.ReplyCh <- Reply{Handled: false, Err: apiErr}
			continue
		}

		// Still no capacity: re-enqueue preserving EnqueuedAt, unless full.
		if err := q.Enqueue(req); err != nil {
			req.ReplyCh <- Reply{Handled: false, Err: apierror.New(503, apierror.CodeQueueFull, "queue full")}
		}
	}
}

func (q *Queue) drainWithReject() {
	for {
		req := q.TryDequeue()
		if req == nil {
			return
		}
		req.ReplyCh <- Reply{Handled: false, Err: apierror.New(503, apierror.CodeQueueTimeout, "server shutting down")}
	}
}
