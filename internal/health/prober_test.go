// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/logging"
)

func testProber() *Prober {
	return New(nil, logging.New(logging.Config{Level: "error"}))
}

func TestProbe(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	p := testProber()
	ctx := context.Background()

	status = http.StatusOK
	assert.True(t, p.Probe(ctx, srv.URL))

	status = http.StatusNoContent
	assert.True(t, p.Probe(ctx, srv.URL))

	status = http.StatusServiceUnavailable
	assert.False(t, p.Probe(ctx, srv.URL))

	status = http.StatusNotFound
	assert.False(t, p.Probe(ctx, srv.URL))
}

func TestProbeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := testProber()
	assert.False(t, p.Probe(context.Background(), url))
}

func TestWaitHealthyEventualSuccess(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := testProber()
	err := p.WaitHealthy(context.Background(), srv.URL, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitHealthyExhaustsBudget(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := testProber()
	err := p.WaitHealthy(context.Background(), srv.URL, 4, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, errors.KindHealthCheck, errors.GetKind(err))
}

func TestWaitHealthyStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testProber()
	err := p.WaitHealthy(ctx, srv.URL, 30, time.Second)
	require.Error(t, err)
}

func TestReachableRejectsBadURL(t *testing.T) {
	p := testProber()
	assert.False(t, p.Reachable("://not-a-url"))
	assert.False(t, p.Reachable(""))
}
