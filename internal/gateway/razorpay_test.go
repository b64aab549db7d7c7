package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	c := NewClient("key", "secret", "whsecret", "http://unused")

	sig := sign("order_abc|pay_xyz", "secret")
	assert.True(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", sig))

	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", "deadbeef"))
	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_other", sig))
	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", sign("order_abc|pay_xyz", "wrong")))
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := NewClient("key", "secret", "whsecret", "http://unused")
	body := []byte(`{"event":"payment.captured"}`)

	assert.True(t, c.VerifyWebhookSignature(body, sign(string(body), "whsecret")))
	assert.False(t, c.VerifyWebhookSignature(body, sign(string(body), "secret")))
	assert.False(t, c.VerifyWebhookSignature([]byte(`{}`), sign(string(body), "whsecret")))
}

func TestCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_test123","amount":195000,"currency":"INR"}`))
	}))
	defer srv.Close()

	c := NewClient("key", "secret", "whsecret", srv.URL)
	id, err := c.CreateIntent(context.Background(), 195000, "INR", "rcpt-1")
	require.NoError(t, err)
	assert.Equal(t, "order_test123", id)
}

func TestCreateIntentGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("key", "secret", "whsecret", srv.URL)
	_, err := c.CreateIntent(context.Background(), 1000, "INR", "rcpt-2")
	assert.Error(t, err)
}
