// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nexus/internal/apierror"
)

// Enqueue Normal-A, Normal-B, High-C, Normal-D into a capacity-10
// queue; try_dequeue order must be C, A, B, D (High drains first, then
// each priority class is FIFO within itself).
func TestQueueFIFOWithPriority(t *testing.T) {
	q := New(10, 30)

	mustEnqueue := func(label string, p Priority) *Request {
		req := &Request{Priority: p, EnqueuedAt: time.Now(), ReplyCh: make(chan Reply, 1)}
		require.NoError(t, q.Enqueue(req))
		return req
	}

	a := mustEnqueue("A", Normal)
	b := mustEnqueue("B", Normal)
	c := mustEnqueue("C", High)
	d := mustEnqueue("D", Normal)

	order := []*Request{}
	for i := 0; i < 4; i++ {
		order = append(order, q.TryDequeue())
	}

	require.Equal(t, []*Request{c, a, b, d}, order)
}

func TestQueueEnqueueRejectsWhenFull(t *testing.T) {
	q := New(1, 30)
	require.NoError(t, q.Enqueue(&Request{Priority: Normal, EnqueuedAt: time.Now(), ReplyCh: make(chan Reply, 1)}))
	err := q.Enqueue(&Request{Priority: Normal, EnqueuedAt: time.Now(), ReplyCh: make(chan Reply, 1)})
	require.Error(t, err)
	var full *Full
	require.ErrorAs(t, err, &full)
}

func TestQueueTryDequeueEmptyReturnsNil(t *testing.T) {
	q := New(4, 30)
	require.Nil(t, q.TryDequeue())
}

func TestDrainOnceRetriesThenSucceeds(t *testing.T) {
	q := New(4, 30)
	reply := make(chan Reply, 1)
	req := &Request{Priority: Normal, EnqueuedAt: time.Now(), ReplyCh: reply}
	require.NoError(t, q.Enqueue(req))

	q.drainOnce(func(r *Request) (bool, *apierror.Error) { return true, nil })

	select {
	case r := <-reply:
		require.True(t, r.Handled)
	default:
		t.Fatal("expected a reply to be sent")
	}
}

func TestDrainOnceReEnqueuesOnContinuedRejection(t *testing.T) {
	q := New(4, 30)
	reply := make(chan Reply, 1)
	req := &Request{Priority: Normal, EnqueuedAt: time.Now(), ReplyCh: reply}
	require.NoError(t, q.Enqueue(req))

	calls := 0
	q.drainOnce(func(r *Request) (bool, *apierror.Error) {
		calls++
		return false, nil
	})

	require.Equal(t, int64(1), q.Depth(), "rejected request should be re-enqueued, not dropped")
	require.Equal(t, 1, calls)

	select {
	case <-reply:
		t.Fatal("no reply should be sent until the request is handled or times out")
	default:
	}
}

func TestDrainOnceRepliesTimeoutPastDeadline(t *testing.T) {
	q := New(4, 1)
	reply := make(chan Reply, 1)
	req := &Request{Priority: Normal, EnqueuedAt: time.Now().Add(-2 * time.Second), ReplyCh: reply}
	require.NoError(t, q.Enqueue(req))

	q.drainOnce(func(r *Request) (bool, *apierror.Error) { return false, nil })

	select {
	case r := <-reply:
		require.False(t, r.Handled)
		require.NotNil(t, r.Err)
	default:
		t.Fatal("expected a timeout reply")
	}
}
