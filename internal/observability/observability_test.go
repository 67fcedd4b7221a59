package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/saviobatista/movement-logger/internal/parser"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
		want   zapcore.Level
	}{
		{"json debug", "debug", "json", zapcore.DebugLevel},
		{"console warn", "warn", "console", zapcore.WarnLevel},
		{"unknown level", "loud", "", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestMustLogger(t *testing.T) {
	assert.NotNil(t, MustLogger("info", "json", "api"))
}

func TestObserveResult(t *testing.T) {
	m := NewMetricsForTesting()
	res := parser.Parse("SBIZAIZ0 HEADER 00002\n" +
		"SBIZAIZ11010125 ABC1234 A320S SBGR SBKP 1430 IV 07 JOAO\n" +
		"SBIZAIZ14150325 PPXYZ BE20N SBKP 1120 07 MARIA\n" +
		"too short\n")

	m.ObserveResult(res, 0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsParsed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesAccepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldMisses.WithLabelValues("rule")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LineFailures))
}

func TestCacheResult(t *testing.T) {
	m := NewMetricsForTesting()

	m.CacheResult("preview", true)
	m.CacheResult("preview", false)
	m.CacheResult("preview", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("preview", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("preview", "miss")))
}
