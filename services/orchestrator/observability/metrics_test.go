// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var initOnce sync.Once

// metrics returns the singleton, initializing it exactly once across
// the test binary (promauto panics on duplicate registration).
func metrics() *ChatMetrics {
	initOnce.Do(func() { InitMetrics() })
	return DefaultMetrics
}

func TestInitMetrics_RegistersInstruments(t *testing.T) {
	m := metrics()
	require.NotNil(t, m)
	require.Same(t, m, DefaultMetrics)

	m.RequestsTotal.WithLabelValues("message", "success").Inc()
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.RequestsTotal.WithLabelValues("message", "success")))
}

func TestActiveStreams_GaugeMoves(t *testing.T) {
	m := metrics()

	before := testutil.ToFloat64(m.ActiveStreams)
	m.ActiveStreams.Inc()
	m.ActiveStreams.Inc()
	m.ActiveStreams.Dec()
	assert.Equal(t, before+1, testutil.ToFloat64(m.ActiveStreams))
	m.ActiveStreams.Dec()
}

func TestStreamErrors_CountByCode(t *testing.T) {
	m := metrics()

	m.StreamErrorsTotal.WithLabelValues("stream_timeout").Inc()
	m.StreamErrorsTotal.WithLabelValues("stream_timeout").Inc()
	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.StreamErrorsTotal.WithLabelValues("stream_timeout")))
}
