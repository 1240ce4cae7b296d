package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNewWithWriter_JSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", false, "bot-gateway")
	l.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "bot-gateway", line["service"])
	assert.Equal(t, "hello", line["message"])
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug", false, "svc")

	ctx := l.With().Str("correlation_id", "abc").Logger().WithContext(context.Background())
	nop := zerolog.Nop()
	FromContext(ctx, &nop).Info().Msg("x")

	assert.Contains(t, buf.String(), `"correlation_id":"abc"`)
}

func TestFromContext_FallsBackWithoutRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	fallback := NewWithWriter(&buf, "info", false, "svc")

	FromContext(context.Background(), &fallback).Info().Msg("from fallback")
	assert.Contains(t, buf.String(), "from fallback")
}
