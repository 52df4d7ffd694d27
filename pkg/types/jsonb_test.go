package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBValueAndScan(t *testing.T) {
	doc := JSONB(`{"order_id":"ord-1","status":"fulfilled"}`)

	v, err := doc.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"order_id":"ord-1","status":"fulfilled"}`, v)

	var scanned JSONB
	require.NoError(t, scanned.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, string(scanned))

	require.NoError(t, scanned.Scan(`{"b":2}`))
	assert.Equal(t, `{"b":2}`, string(scanned))

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)

	require.Error(t, scanned.Scan(42))
}

func TestJSONBRejectsInvalidDocuments(t *testing.T) {
	_, err := JSONB(`{not json`).Value()
	require.Error(t, err)

	v, err := JSONB(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
