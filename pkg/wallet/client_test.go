package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberbrief/cyberbrief-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.WalletConfig{
		Endpoint:  server.URL,
		APIKey:    "key1",
		APISecret: "secret1",
		Timeout:   time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestCreatePaymentLinkSendsRequest(t *testing.T) {
	var captured LinkRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key1", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"paymentLink":"https://pay/x","orderId":"ord-9"}`))
	})

	link, err := client.CreatePaymentLink(context.Background(), LinkRequest{
		Amount:      "10",
		Currency:    "USD",
		Email:       "a@b.com",
		Ref:         "ref-1",
		RedirectURL: "https://cyberbrief.news/payment/success?ref=ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay/x", link.URL)
	assert.Equal(t, "ord-9", link.OrderID)
	assert.Equal(t, LinkRequest{
		Amount:      "10",
		Currency:    "USD",
		Email:       "a@b.com",
		Ref:         "ref-1",
		RedirectURL: "https://cyberbrief.news/payment/success?ref=ref-1",
	}, captured)
}

func TestCreatePaymentLinkProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"merchant disabled"}`))
	})

	_, err := client.CreatePaymentLink(context.Background(), LinkRequest{Amount: "10"})
	require.Error(t, err)

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, http.StatusBadGateway, providerErr.StatusCode)
	assert.Equal(t, "merchant disabled", providerErr.Message)
}

func TestCreatePaymentLinkMissingLink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"no link"}`))
	})

	_, err := client.CreatePaymentLink(context.Background(), LinkRequest{Amount: "10"})
	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, "no link", providerErr.Message)
}

func TestCreatePaymentLinkNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(config.WalletConfig{Endpoint: url, APIKey: "k", APISecret: "s"})
	require.NoError(t, err)

	_, err = client.CreatePaymentLink(context.Background(), LinkRequest{Amount: "10"})
	require.Error(t, err)
}

func TestNewClientValidatesCredentials(t *testing.T) {
	_, err := NewClient(config.WalletConfig{APIKey: "k", APISecret: "s"})
	assert.ErrorIs(t, err, errEndpointRequired)

	_, err = NewClient(config.WalletConfig{Endpoint: "https://wallet", APISecret: "s"})
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(config.WalletConfig{Endpoint: "https://wallet", APIKey: "k"})
	assert.ErrorIs(t, err, errSecretRequired)

	client, err := NewClient(config.WalletConfig{Endpoint: "https://wallet", APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "k", client.APIKey())
	assert.Equal(t, "s", client.APISecret())
}
