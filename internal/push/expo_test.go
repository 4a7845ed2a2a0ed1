package push_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealdrop/mealdrop/internal/push"
)

func TestExpoProvider_Send(t *testing.T) {
	var gotAuth string
	var gotMessages []push.Message

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotMessages))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"status":"ok","id":"tick-1"},
			{"status":"error","message":"not registered","details":{"error":"DeviceNotRegistered"}}
		]}`))
	}))
	defer srv.Close()

	provider := push.NewExpoProvider(push.ExpoConfig{URL: srv.URL, AccessToken: "tok-123"}, zerolog.Nop())

	tickets, err := provider.Send(context.Background(), []push.Message{
		{To: "ExponentPushToken[aaa]", Title: "Order Ready", Body: "Order #MD-1 is ready for pickup."},
		{To: "ExponentPushToken[bbb]", Title: "Order Ready", Body: "Order #MD-1 is ready for pickup."},
	})
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	require.Len(t, gotMessages, 2)
	assert.Equal(t, "ExponentPushToken[aaa]", gotMessages[0].To)

	assert.True(t, tickets[0].OK)
	assert.False(t, tickets[0].TokenInvalid)

	assert.False(t, tickets[1].OK)
	assert.True(t, tickets[1].TokenInvalid)
	assert.Equal(t, "ExponentPushToken[bbb]", tickets[1].Token)
}

func TestExpoProvider_EmptyBatch(t *testing.T) {
	provider := push.NewExpoProvider(push.ExpoConfig{URL: "http://127.0.0.1:0"}, zerolog.Nop())

	tickets, err := provider.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tickets)
}

func TestExpoProvider_OversizedBatch(t *testing.T) {
	provider := push.NewExpoProvider(push.ExpoConfig{URL: "http://127.0.0.1:0"}, zerolog.Nop())

	oversized := make([]push.Message, push.ExpoMaxBatchSize+1)
	for i := range oversized {
		oversized[i] = push.Message{To: "ExponentPushToken[x]"}
	}

	_, err := provider.Send(context.Background(), oversized)
	assert.Error(t, err)
}

func TestExpoProvider_TicketCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"status":"ok"}]}`))
	}))
	defer srv.Close()

	provider := push.NewExpoProvider(push.ExpoConfig{URL: srv.URL}, zerolog.Nop())

	_, err := provider.Send(context.Background(), []push.Message{
		{To: "ExponentPushToken[aaa]"},
		{To: "ExponentPushToken[bbb]"},
	})
	assert.Error(t, err)
}
