package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsecore-go/frame"
	"pulsecore-go/types"
)

func TestClientOptionsFromURL(t *testing.T) {
	opts, prefix, err := clientOptionsFromURL("mqtt://user:pw@broker.local:1883/bench/rig7?client-id=mon1")
	require.NoError(t, err)

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp", opts.Servers[0].Scheme)
	assert.Equal(t, "broker.local:1883", opts.Servers[0].Host)
	assert.Equal(t, "user", opts.Username)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, "mon1", opts.ClientID)
	assert.Equal(t, "bench/rig7", prefix)
}

func TestClientOptionsKeepExplicitScheme(t *testing.T) {
	opts, prefix, err := clientOptionsFromURL("ssl://broker.local:8883")
	require.NoError(t, err)
	assert.Equal(t, "ssl", opts.Servers[0].Scheme)
	assert.Empty(t, prefix)
}

func TestBridgePayloadEncoding(t *testing.T) {
	body, err := encodeBridgePayload(frame.TestResult{
		TestID:    0x05,
		Name:      "comm_echo_test",
		ElapsedMs: 12,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "comm_echo_test", decoded["test"])
	assert.EqualValues(t, 12, decoded["elapsed_ms"])

	body, err = encodeBridgePayload(types.NewLogMessage(42, types.LevelWarn, "battery", "state low"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "battery", decoded["module"])
	assert.Equal(t, "state low", decoded["text"])

	body, err = encodeBridgePayload("charging")
	require.NoError(t, err)
	assert.Equal(t, "charging", string(body))

	_, err = encodeBridgePayload(struct{}{})
	assert.Error(t, err)
}
