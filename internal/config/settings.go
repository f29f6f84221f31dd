package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/roach88/featurestream/internal/pathsyntax"
)

// Settings holds provider configuration.
// Settings come from a YAML file or environment variables; environment
// variables always override YAML values.
type Settings struct {
	Database DatabaseSettings `yaml:"database"`
	Syntax   SyntaxSettings   `yaml:"syntax"`
	Query    QuerySettings    `yaml:"query"`
	Log      LogSettings      `yaml:"log"`

	// FeatureTypes is the directory holding CUE feature type mappings.
	FeatureTypes string `yaml:"feature_types" env:"FEATURESTREAM_FEATURE_TYPES" env-default:"featuretypes"`
}

// DatabaseSettings holds the SQLite connection settings.
type DatabaseSettings struct {
	Path string `yaml:"path" env:"FEATURESTREAM_DB" env-default:"features.db"`
	// MaxOpenConns caps the pool; 0 means unlimited. Every container of a
	// feature type holds one connection while a read streams.
	MaxOpenConns int `yaml:"max_open_conns" env:"FEATURESTREAM_DB_MAX_OPEN_CONNS" env-default:"0"`
}

// SyntaxSettings configures the path grammar.
type SyntaxSettings struct {
	JunctionPattern   string `yaml:"junction_pattern" env:"FEATURESTREAM_JUNCTION_PATTERN" env-default:".+_2_.+"`
	DefaultPrimaryKey string `yaml:"default_primary_key" env:"FEATURESTREAM_DEFAULT_PRIMARY_KEY" env-default:"id"`
	// DefaultSortKey defaults to the primary key when empty.
	DefaultSortKey string `yaml:"default_sort_key" env:"FEATURESTREAM_DEFAULT_SORT_KEY" env-default:""`
}

// QuerySettings holds defaults applied to feature queries.
type QuerySettings struct {
	Limit                int  `yaml:"limit" env:"FEATURESTREAM_LIMIT" env-default:"0"`
	ComputeNumberMatched bool `yaml:"compute_number_matched" env:"FEATURESTREAM_COMPUTE_NUMBER_MATCHED" env-default:"false"`
}

// LogSettings configures the slog handler.
type LogSettings struct {
	Level  string `yaml:"level" env:"FEATURESTREAM_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"FEATURESTREAM_LOG_FORMAT" env-default:"text"`
}

// LoadSettings reads settings from path with environment variable overrides.
// An empty path reads the environment only.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}

	if path == "" {
		if err := cleanenv.ReadEnv(s); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, s); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative, got %d", s.Database.MaxOpenConns)
	}
	if s.Query.Limit < 0 {
		return fmt.Errorf("query.limit must not be negative, got %d", s.Query.Limit)
	}
	if _, err := s.Log.level(); err != nil {
		return err
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", s.Log.Format)
	}
	if _, err := s.Syntax.Config(); err != nil {
		return err
	}
	return nil
}

// Config builds the path grammar configuration.
func (s SyntaxSettings) Config() (pathsyntax.SyntaxConfig, error) {
	opts := []pathsyntax.Option{
		pathsyntax.WithJunctionTablePattern(s.JunctionPattern),
		pathsyntax.WithDefaultPrimaryKey(s.DefaultPrimaryKey),
	}
	if s.DefaultSortKey != "" {
		opts = append(opts, pathsyntax.WithDefaultSortKey(s.DefaultSortKey))
	}
	return pathsyntax.NewSyntaxConfig(opts...)
}

func (l LogSettings) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Logger builds a logger writing to w. Invalid levels fall back to info.
func (l LogSettings) Logger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
