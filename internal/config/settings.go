package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kartoza/redshift/internal/catalog"
	"github.com/kartoza/redshift/internal/forest"
	"github.com/kartoza/redshift/internal/schema"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is looked up in the working directory when no path is
// given.
const DefaultSettingsFile = "redshift.yaml"

// Defaults returns the settings used when no file is present
func Defaults() *Settings {
	return &Settings{
		LabelColumn:    schema.DefaultLabelColumn,
		ExcludeColumns: append([]string(nil), schema.DefaultExcluded...),
		PositiveClass:  "CP",
		RankTarget:     "CP",
		Encoding:       catalog.DefaultEncoding,
		TestFraction:   0.2,
		Seed:           42,
		Forest:         forest.DefaultConfig(),
		ModelDir:       "outputs",
		DataDir:        "data",
		Catalogs: Catalogs{
			Training:    filepath.Join("data", "NASA_DATASET_Optimized.csv"),
			Candidates:  filepath.Join("data", "Candidates.csv"),
			Confirmed:   filepath.Join("data", "Confirmed.csv"),
			CandidateDB: filepath.Join("data", "candidates.db"),
		},
		Server: ServerOptions{Port: 8080, CacheSize: 4},
		Log:    LogOptions{Level: "info", Format: "text"},
	}
}

// LoadSettings reads a YAML settings file over the defaults. An empty path
// tries DefaultSettingsFile; a missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := Defaults()
	explicit := path != ""
	if !explicit {
		path = DefaultSettingsFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	if err := inheritForestSeed(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

// inheritForestSeed copies the top-level seed into the forest unless the
// file sets forest.seed itself
func inheritForestSeed(data []byte, s *Settings) error {
	var explicit struct {
		Forest struct {
			Seed *int64 `yaml:"seed"`
		} `yaml:"forest"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return err
	}
	if explicit.Forest.Seed == nil {
		s.Forest.Seed = s.Seed
	}
	return nil
}

// SaveSettings writes s as YAML
func SaveSettings(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Validate checks the values that cannot be checked later without a catalog
func (s *Settings) Validate() error {
	if s.LabelColumn == "" {
		return fmt.Errorf("label_column is empty")
	}
	if s.PositiveClass == "" {
		return fmt.Errorf("positive_class is empty")
	}
	if !(s.TestFraction > 0 && s.TestFraction < 1) {
		return fmt.Errorf("test_fraction must be in (0, 1), got %v", s.TestFraction)
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", s.Server.Port)
	}
	return s.Forest.Validate()
}
