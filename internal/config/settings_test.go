package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSettings_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "settings.yaml", "{}\n")

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "features.db", s.Database.Path)
	assert.Equal(t, 0, s.Database.MaxOpenConns)
	assert.Equal(t, ".+_2_.+", s.Syntax.JunctionPattern)
	assert.Equal(t, "id", s.Syntax.DefaultPrimaryKey)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "text", s.Log.Format)
	assert.False(t, s.Query.ComputeNumberMatched)
	assert.Equal(t, "featuretypes", s.FeatureTypes)

	syntax, err := s.Syntax.Config()
	require.NoError(t, err)
	assert.Equal(t, "id", syntax.DefaultSortKey())
	assert.True(t, syntax.IsJunctionTable("parcels_2_owners"))
}

func TestLoadSettings_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "settings.yaml", `
database:
  path: /data/parcels.db
  max_open_conns: 16
syntax:
  junction_pattern: "^link_"
  default_primary_key: fid
  default_sort_key: seq
query:
  limit: 100
  compute_number_matched: true
log:
  level: debug
  format: json
feature_types: mappings
`)

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/parcels.db", s.Database.Path)
	assert.Equal(t, 16, s.Database.MaxOpenConns)
	assert.Equal(t, 100, s.Query.Limit)
	assert.True(t, s.Query.ComputeNumberMatched)
	assert.Equal(t, "mappings", s.FeatureTypes)

	syntax, err := s.Syntax.Config()
	require.NoError(t, err)
	assert.Equal(t, "fid", syntax.DefaultPrimaryKey())
	assert.Equal(t, "seq", syntax.DefaultSortKey())
	assert.True(t, syntax.IsJunctionTable("link_parcels_owners"))
	assert.False(t, syntax.IsJunctionTable("parcels_2_owners"))
}

func TestLoadSettings_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "settings.yaml", "database:\n  path: from-yaml.db\n")
	t.Setenv("FEATURESTREAM_DB", "from-env.db")
	t.Setenv("FEATURESTREAM_LIMIT", "5")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", s.Database.Path)
	assert.Equal(t, 5, s.Query.Limit)
}

func TestLoadSettings_EnvOnly(t *testing.T) {
	t.Setenv("FEATURESTREAM_DEFAULT_PRIMARY_KEY", "gid")

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, "gid", s.Syntax.DefaultPrimaryKey)
	assert.Equal(t, "features.db", s.Database.Path)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative limit", "query:\n  limit: -1\n"},
		{"negative pool", "database:\n  max_open_conns: -2\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"bad junction pattern", "syntax:\n  junction_pattern: \"(\"\n"},
		{"bad primary key", "syntax:\n  default_primary_key: \"not a column\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "settings.yaml", tt.content)
			_, err := LoadSettings(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogSettings_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogSettings{Level: "warn", Format: "json"}.Logger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "container", "parcels")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"container":"parcels"`)
}
