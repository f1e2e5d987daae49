package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "pay-1", r.Header.Get("Idempotency-Key"))

		var req createIntentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(15050), req.Amount)
		assert.Equal(t, "usd", req.Currency)
		assert.Equal(t, "pay-1", req.Metadata["payment_id"])

		_ = json.NewEncoder(w).Encode(Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: IntentRequiresAction})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "sk_test", 5*time.Second)
	intent, err := c.CreateIntent(context.Background(), "pay-1", 150.50, "USD")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
}

func TestCreateIntent_Errors(t *testing.T) {
	t.Run("processor rejects", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":{"message":"card declined"}}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, "sk", time.Second).CreateIntent(context.Background(), "pay-1", 10, "usd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "card declined")
	})

	t.Run("missing secret", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"pi_2"}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, "sk", time.Second).CreateIntent(context.Background(), "pay-1", 10, "usd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "incomplete response")
	})
}

func TestGetIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/payment_intents/pi_missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(Intent{ID: "pi_1", Status: IntentSucceeded, Amount: 10000})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk", time.Second)

	intent, err := c.GetIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, intent.Status)

	_, err = c.GetIntent(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(10000), ToMinorUnits(100))
	assert.Equal(t, int64(1999), ToMinorUnits(19.99))
	assert.Equal(t, int64(0), ToMinorUnits(0))
}
