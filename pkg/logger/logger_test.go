package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttradeapp/cbtools.go/pkg/logger"
)

func TestBuildToWriter(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New().ToWriter(&buf).Make()
	require.NoError(t, err)

	log.Info().Str("op", "save").Msg("gateway request")
	assert.Contains(t, buf.String(), `"op":"save"`)
	assert.Contains(t, buf.String(), "gateway request")
}

func TestBuildLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New().ToWriter(&buf).Level(zerolog.WarnLevel).Make()
	require.NoError(t, err)

	log.Debug().Msg("too quiet")
	log.Warn().Msg("loud enough")

	assert.NotContains(t, buf.String(), "too quiet")
	assert.Contains(t, buf.String(), "loud enough")
}

func TestBuildToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbtools.log")
	log, err := logger.New().ToPath(path).Make()
	require.NoError(t, err)

	log.Info().Msg("persisted")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "persisted")
}
