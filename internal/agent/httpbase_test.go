// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStreamReaderSkipsBlankLines(t *testing.T) {
	resp := &http.Response{
		Body: io.NopCloser(bytes.NewBufferString("data: one\n\ndata: two\n")),
	}
	r := newHTTPStreamReader(resp, func() {})

	chunk, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "data: one", string(chunk.Raw))

	chunk, err = r.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "data: two", string(chunk.Raw))

	_, err = r.Next(context.Background())
	require.ErrorIs(t, err, ErrStreamDone)
}

func TestHTTPStreamReaderCloseCancelsContext(t *testing.T) {
	resp := &http.Response{Body: io.NopCloser(bytes.NewBufferString(""))}
	cancelled := false
	r := newHTTPStreamReader(resp, func() { cancelled = true })
	require.NoError(t, r.Close())
	require.True(t, cancelled)
}

func TestModelHeuristicsOverridesContextLengthAndCapabilities(t *testing.T) {
	m := ModelCapability{ID: "llava-128k"}
	modelHeuristics(&m)
	require.Equal(t, uint32(131072), m.ContextLength)
	require.True(t, m.SupportsVision)
}
