package client_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealdrop/mealdrop/pkg/client"
)

func TestResponseCache_RoundTrip(t *testing.T) {
	c := client.NewResponseCache(client.NewMemoryStore(), zerolog.Nop())

	value := json.RawMessage(`{"orderNumber":"MD-1A2B3C4D","status":"placed"}`)
	c.Set("/v1/orders/ord_1", value, time.Minute)

	got, ok := c.Get("/v1/orders/ord_1")
	require.True(t, ok)
	assert.JSONEq(t, string(value), string(got))
}

func TestResponseCache_ExpiredEntryIsAMiss(t *testing.T) {
	c := client.NewResponseCache(client.NewMemoryStore(), zerolog.Nop())

	c.Set("/v1/orders", json.RawMessage(`[]`), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("/v1/orders")
	assert.False(t, ok)
}

func TestResponseCache_ClearExpired(t *testing.T) {
	c := client.NewResponseCache(client.NewMemoryStore(), zerolog.Nop())

	c.Set("stale", json.RawMessage(`1`), time.Millisecond)
	c.Set("live", json.RawMessage(`2`), time.Minute)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, c.ClearExpired())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("live")
	assert.True(t, ok)
}

func TestResponseCache_SurvivesRestartAndPrunesOnStart(t *testing.T) {
	store := client.NewMemoryStore()

	c1 := client.NewResponseCache(store, zerolog.Nop())
	c1.Set("stale", json.RawMessage(`1`), time.Millisecond)
	c1.Set("live", json.RawMessage(`2`), time.Minute)
	time.Sleep(5 * time.Millisecond)

	// A fresh cache over the same store restores entries and prunes the
	// expired one immediately.
	c2 := client.NewResponseCache(store, zerolog.Nop())
	assert.Equal(t, 1, c2.Len())

	got, ok := c2.Get("live")
	require.True(t, ok)
	assert.Equal(t, `2`, string(got))
}
