package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Setup(LogConfig{Level: "debug", Format: "json", Output: path}))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log := WithDocument("pipeline", "a.pdf")
	log.Info().Int("pages", 2).Msg("processed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"pipeline"`)
	assert.Contains(t, string(data), `"file":"a.pdf"`)
	assert.Contains(t, string(data), `"pages":2`)
}

func TestSetup_RejectsUnknownLevel(t *testing.T) {
	err := Setup(LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
