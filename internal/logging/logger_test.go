// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logging

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureLogOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)
	fn()
	return buf.String()
}

func TestConfigureDefaultLevelSuppressesBelowThreshold(t *testing.T) {
	Configure(FormatJSON, WARN, nil)
	defer Configure(FormatJSON, INFO, nil)

	logger := New("test-component")
	out := captureLogOutput(t, func() {
		logger.Info("", "should be suppressed", nil)
	})
	require.Empty(t, out)
}

func TestConfigureComponentOverrideTakesPrecedenceOverDefault(t *testing.T) {
	Configure(FormatJSON, ERROR, map[string]Level{"verbose-component": DEBUG})
	defer Configure(FormatJSON, INFO, nil)

	logger := New("verbose-component")
	out := captureLogOutput(t, func() {
		logger.Debug("", "should appear", nil)
	})
	require.Contains(t, out, "should appear")
}

func TestConfigurePrettyFormatIsHumanReadable(t *testing.T) {
	Configure(FormatPretty, INFO, nil)
	defer Configure(FormatJSON, INFO, nil)

	logger := New("pretty-component")
	out := captureLogOutput(t, func() {
		logger.Info("", "pretty message", nil)
	})
	require.True(t, strings.Contains(out, "pretty message"))
	require.False(t, strings.Contains(out, `"message"`))
}

func TestErrorWithCodeAnnotatesFields(t *testing.T) {
	Configure(FormatJSON, INFO, nil)
	logger := New("err-component")
	out := captureLogOutput(t, func() {
		logger.ErrorWithCode("req-1", "failed", 502, nil, nil)
	})
	require.Contains(t, out, `"status_code":502`)
}
