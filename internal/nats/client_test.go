package nats

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saviobatista/movement-logger/internal/testutils"
)

func TestNew_InvalidURLs(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"invalid scheme", "invalid://url:12345"},
		{"malformed", "not-a-url"},
		{"nothing listening", "nats://127.0.0.1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.url, nil)
			assert.Error(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestClient_Close_NilSafety(t *testing.T) {
	client := &Client{conn: nil}
	client.Close()
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "movements.raw", SubjectRaw)
	assert.Equal(t, "movements.saved", SubjectSaved)
	assert.Equal(t, "MOVEMENTS", StreamName)
}

func TestDecodeRawLog(t *testing.T) {
	raw := testutils.MockRawLog(testutils.MockMovementLog(testutils.DefaultMovement().Line()))
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	got, err := decodeRawLog(data)
	require.NoError(t, err)
	assert.Equal(t, raw.Content, got.Content)
	assert.Equal(t, raw.Source, got.Source)
	assert.WithinDuration(t, raw.ReceivedAt, got.ReceivedAt, time.Millisecond)
}

func TestDecodeRawLog_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "MSG,8,111"},
		{"empty content", `{"id":"x","source":"s","content":""}`},
		{"wrong type", `{"content":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRawLog([]byte(tt.data))
			require.Error(t, err)

			var malformed errMalformed
			assert.True(t, errors.As(err, &malformed))
			assert.Contains(t, err.Error(), "malformed message")
		})
	}
}
