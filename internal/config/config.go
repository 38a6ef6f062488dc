package config

import (
	"time"

	"github.com/kartoza/redshift/internal/forest"
)

// Config holds the server configuration
type Config struct {
	Port          int
	DataDir       string
	ModelDir      string
	Version       string
	PositiveClass string
	RankTarget    string

	// CandidateCatalog is ranked by GET /api/top
	CandidateCatalog string
	ConfirmedCatalog string
	CandidateDB      string
	Encoding         string
	CacheSize        int
	ShutdownTimeout  time.Duration
}

// Settings is the on-disk configuration file. Every field is optional;
// zero values fall back to Defaults.
type Settings struct {
	LabelColumn    string        `yaml:"label_column"`
	ExcludeColumns []string      `yaml:"exclude_columns"`
	PositiveClass  string        `yaml:"positive_class"`
	RankTarget     string        `yaml:"rank_target"`
	Encoding       string        `yaml:"encoding"`
	TestFraction   float64       `yaml:"test_fraction"`
	Seed           int64         `yaml:"seed"`
	Forest         forest.Config `yaml:"forest"`
	ModelDir       string        `yaml:"model_dir"`
	DataDir        string        `yaml:"data_dir"`
	Catalogs       Catalogs      `yaml:"catalogs"`
	Server         ServerOptions `yaml:"server"`
	Log            LogOptions    `yaml:"log"`
}

// Catalogs names the data files the server reads
type Catalogs struct {
	Training    string `yaml:"training"`
	Candidates  string `yaml:"candidates"`
	Confirmed   string `yaml:"confirmed"`
	CandidateDB string `yaml:"candidate_db"`
}

// ServerOptions controls the HTTP server
type ServerOptions struct {
	Port      int `yaml:"port"`
	CacheSize int `yaml:"cache_size"`
}

// LogOptions selects the log level and handler
type LogOptions struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
