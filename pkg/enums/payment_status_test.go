package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatusTerminal(t *testing.T) {
	assert.True(t, PaymentStatusFulfilled.IsTerminal())
	assert.True(t, PaymentStatusTimedOut.IsTerminal())
	assert.True(t, PaymentStatusCancelled.IsTerminal())
	assert.False(t, PaymentStatusPending.IsTerminal())
	assert.False(t, PaymentStatusUnknown.IsTerminal())
}

func TestPaymentStatusAdvancesFrom(t *testing.T) {
	assert.Equal(t, []PaymentStatus{PaymentStatusPending, PaymentStatusUnknown}, PaymentStatusFulfilled.AdvancesFrom())
	assert.Equal(t, []PaymentStatus{PaymentStatusPending}, PaymentStatusUnknown.AdvancesFrom())
	assert.Nil(t, PaymentStatusPending.AdvancesFrom())
}

func TestParsePaymentStatus(t *testing.T) {
	status, err := ParsePaymentStatus("timed_out")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusTimedOut, status)

	_, err = ParsePaymentStatus("paid")
	require.Error(t, err)
}

func TestParseCurrencyDefaults(t *testing.T) {
	c, err := ParseCurrency("")
	require.NoError(t, err)
	assert.Equal(t, CurrencyUSD, c)

	c, err = ParseCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, CurrencyEUR, c)

	_, err = ParseCurrency("BTC")
	require.Error(t, err)
}
