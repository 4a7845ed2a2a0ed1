package client_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealdrop/mealdrop/pkg/client"
)

func TestProbeMonitor_ProbeErrorMeansOffline(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	probe := func(context.Context) error {
		if failing.Load() {
			return errors.New("no route to host")
		}
		return nil
	}

	m := client.NewProbeMonitor(probe, time.Hour)

	// Fail toward queueing: a probe error reports offline.
	assert.False(t, m.Online(context.Background()))

	failing.Store(false)
	// State is tracked, not re-probed on every call.
	assert.False(t, m.Online(context.Background()))
}

func TestProbeMonitor_RestoreCallbackFires(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	probe := func(context.Context) error {
		if failing.Load() {
			return errors.New("offline")
		}
		return nil
	}

	m := client.NewProbeMonitor(probe, 10*time.Millisecond)

	restored := make(chan struct{}, 1)
	m.OnConnectivityRestored(func() { restored <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	// Let it observe the offline state first.
	require.Eventually(t, func() bool {
		return !m.Online(context.Background())
	}, 2*time.Second, 5*time.Millisecond)

	failing.Store(false)

	select {
	case <-restored:
	case <-time.After(2 * time.Second):
		t.Fatal("connectivity-restored callback never fired")
	}
	assert.True(t, m.Online(context.Background()))
}
