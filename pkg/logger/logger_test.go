package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel_AcceptsKnownSpellings(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug, "DEBUG": LevelDebug,
		"info": LevelInfo, "": LevelInfo,
		"warn": LevelWarn, "warning": LevelWarn, "WARNING": LevelWarn,
		"error": LevelError, "ERROR": LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestParseLevel_RejectsUnknownValue(t *testing.T) {
	_, err := ParseLevel("shout")
	assert.Error(t, err)
}

func TestParseFormat_AcceptsKnownSpellings(t *testing.T) {
	got, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	got, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, got)
}

func TestParseFormat_RejectsUnknownValue(t *testing.T) {
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestConfig_EnableCategory_AllTurnsOnEveryKnownCategory(t *testing.T) {
	cfg := NewConfig()
	cfg.EnableCategory(CategoryAll)

	for _, cat := range allCategories {
		assert.True(t, cfg.IsCategoryEnabled(cat), "category %s", cat)
	}
}

func TestConfig_EnableCategory_SingleCategoryDoesNotEnableOthers(t *testing.T) {
	cfg := NewConfig()
	cfg.EnableCategory(CategoryCodec)

	assert.True(t, cfg.IsCategoryEnabled(CategoryCodec))
	assert.False(t, cfg.IsCategoryEnabled(CategoryStream))
}

func TestNew_WritesJSONLinesToOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	cfg := NewConfig()
	cfg.Format = FormatJSON
	cfg.Level = LevelDebug
	cfg.OutputFile = path

	l, err := New(cfg)
	require.NoError(t, err)
	l.Debug().Str("k", "v").Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "v", line["k"])
}

func TestNew_LevelGatesMessagesBelowThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	cfg := NewConfig()
	cfg.Format = FormatJSON
	cfg.Level = LevelWarn
	cfg.OutputFile = path

	l, err := New(cfg)
	require.NoError(t, err)
	l.Debug().Msg("should be dropped")
	l.Warn().Msg("should be kept")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "should be dropped")
	assert.Contains(t, out, "should be kept")
}

func TestLogger_CategorySubLoggerTagsComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	cfg := NewConfig()
	cfg.Format = FormatJSON
	cfg.Level = LevelDebug
	cfg.OutputFile = path

	l, err := New(cfg)
	require.NoError(t, err)
	l.Stream().Info().Msg("flushed")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line))
	assert.Equal(t, "stream", line["component"])
}

func TestLogger_CategoryEnabledDelegatesToConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.EnableCategory(CategoryIngest)
	l := &Logger{config: cfg}

	assert.True(t, l.CategoryEnabled(CategoryIngest))
	assert.False(t, l.CategoryEnabled(CategoryControl))
}

func TestDefault_ReturnsSameInstanceAcrossCalls(t *testing.T) {
	assert.Same(t, Default(), Default())
}
