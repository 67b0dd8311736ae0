package temporal

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAdapterWritesKeyvals(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewLogAdapter(zerolog.New(&buf))

	adapter.Info("workflow started", "WorkflowID", "beacon-delivery-n-1-sms", "Attempt", 2)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "temporal-sdk", line["component"])
	assert.Equal(t, "workflow started", line["message"])
	assert.Equal(t, "beacon-delivery-n-1-sms", line["WorkflowID"])
	assert.Equal(t, float64(2), line["Attempt"])
}

func TestLogAdapterHandlesOddKeyvals(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewLogAdapter(zerolog.New(&buf))

	adapter.Warn("odd", 7, "x", "ok")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "MISSING_VALUE", line["ok"])
	assert.Equal(t, "x", line["INVALID_KEY"])
}

func TestLogAdapterWithKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewLogAdapter(zerolog.New(&buf)).With("Namespace", "default")

	adapter.Error("activity failed", "error", errors.New("boom"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "default", line["Namespace"])
	assert.Equal(t, "boom", line["error"])
}
