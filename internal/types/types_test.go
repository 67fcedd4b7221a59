package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlightRecord_Sentinels(t *testing.T) {
	rec := NewFlightRecord()

	assert.Nil(t, rec.Timestamp)
	assert.Equal(t, NotAvailable, rec.Matricula)
	assert.Equal(t, NotAvailable, rec.TipoAeronave)
	assert.Equal(t, NotAvailable, rec.FlightClass)
	assert.Equal(t, NotAvailable, rec.Origem)
	assert.Equal(t, NotAvailable, rec.Destino)
	assert.Equal(t, RuleUnknown, rec.RegraVoo)
	assert.Equal(t, "", rec.Pista)
	assert.Equal(t, NotAvailable, rec.Responsavel)
}

func TestFlightRecord_JSONKeys(t *testing.T) {
	ts := time.Date(2025, 1, 1, 14, 30, 0, 0, time.UTC)
	rec := NewFlightRecord()
	rec.Timestamp = &ts
	rec.RegraVoo = RuleIFR

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	for _, key := range []string{"timestamp", "matricula", "tipo_aeronave", "flight_class", "origem", "destino", "regra_voo", "pista", "responsavel"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "2025-01-01T14:30:00Z", m["timestamp"])
	assert.Equal(t, "IFR", m["regra_voo"])
}

func TestFlightRecord_NullTimestamp(t *testing.T) {
	data, err := json.Marshal(NewFlightRecord())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":null`)
	assert.Contains(t, string(data), `"pista":""`)
}

func TestUpload_JSONHidesOwner(t *testing.T) {
	up := Upload{ID: "u1", UserID: "secret-user", ICAOCode: "SBIZ", RecordCount: 3}

	data, err := json.Marshal(up)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret-user")
	assert.Contains(t, string(data), `"uploadId":"u1"`)
	assert.Contains(t, string(data), `"dataDate":null`)
}
