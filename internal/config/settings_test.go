package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadSettingsDefaults(t *testing.T) {
	wd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(wd) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if diff := cmp.Diff(Defaults(), s); diff != "" {
		t.Errorf("expected defaults:\n%s", diff)
	}
}

func TestLoadSettingsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redshift.yaml")
	yaml := `
positive_class: Confirmed Planet
test_fraction: 0.25
forest:
  trees: 50
  max_features: log2
server:
  port: 9090
log:
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}

	want := Defaults()
	want.PositiveClass = "Confirmed Planet"
	want.TestFraction = 0.25
	want.Forest.Trees = 50
	want.Forest.MaxFeatures = "log2"
	want.Server.Port = 9090
	want.Log.Format = "json"
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch:\n%s", diff)
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadSettings(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for explicit missing file")
	}

	tests := map[string]string{
		"syntax":   "forest: [",
		"fraction": "test_fraction: 1.5",
		"trees":    "forest:\n  trees: 0",
		"port":     "server:\n  port: 70000",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			if err := os.WriteFile(path, []byte(body), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSettings(path); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	s := Defaults()
	s.RankTarget = "FP"

	if err := SaveSettings(path, s); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	back, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if diff := cmp.Diff(s, back); diff != "" {
		t.Errorf("round trip mismatch:\n%s", diff)
	}
}

func TestLoadSettingsForestSeed(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		split      int64
		forestSeed int64
	}{
		{"inherits top-level seed", "seed: 7\n", 7, 7},
		{"explicit forest seed wins", "seed: 7\nforest:\n  seed: 99\n", 7, 99},
		{"explicit zero forest seed", "seed: 7\nforest:\n  seed: 0\n", 7, 0},
		{"defaults", "log:\n  level: debug\n", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "redshift.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0644); err != nil {
				t.Fatal(err)
			}
			s, err := LoadSettings(path)
			if err != nil {
				t.Fatalf("LoadSettings failed: %v", err)
			}
			if s.Seed != tt.split || s.Forest.Seed != tt.forestSeed {
				t.Errorf("Expected seeds %d/%d, got %d/%d", tt.split, tt.forestSeed, s.Seed, s.Forest.Seed)
			}
		})
	}
}
