package cluster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `data:
  path: data/incidents.csv
  delimiter: ";"
features:
  - Jumlah_Kejadian
clustering:
  minK: 2
  maxK: 4
  seed: 7
defaultK: 3
artifacts:
  scaler: models/scaler.json
  model: models/kmeans_model.json
http:
  port: 9090
mqtt:
  broker: tcp://localhost:1883
  publishPrefix: bencana-test
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, validConfigYAML())
	dir := filepath.Dir(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Data.Path != filepath.Join(dir, "data/incidents.csv") {
		t.Errorf("Data.Path = %q, want it relative to the config dir", cfg.Data.Path)
	}
	if cfg.Delimiter() != ';' {
		t.Errorf("Delimiter = %q, want ';'", cfg.Delimiter())
	}
	if cfg.Artifacts.Model != filepath.Join(dir, "models/kmeans_model.json") {
		t.Errorf("Artifacts.Model = %q", cfg.Artifacts.Model)
	}
	if cfg.Clustering.MaxK != 4 || cfg.Clustering.Seed != 7 {
		t.Errorf("Clustering = %+v", cfg.Clustering)
	}
	if cfg.Clustering.NInit != 10 || cfg.Clustering.MaxIter != 300 {
		t.Errorf("unset clustering fields should keep defaults, got %+v", cfg.Clustering)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.MQTT.PublishPrefix != "bencana-test" {
		t.Errorf("MQTT.PublishPrefix = %q", cfg.MQTT.PublishPrefix)
	}
	// untouched sections keep their defaults
	if cfg.Columns.DisasterType.Name != "Jenis_Bencana" {
		t.Errorf("Columns.DisasterType.Name = %q", cfg.Columns.DisasterType.Name)
	}
	if len(cfg.DisasterTypes) != 7 {
		t.Errorf("len(DisasterTypes) = %d, want 7", len(cfg.DisasterTypes))
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"empty data path", "data:\n  path: \"\"\n", "data.path"},
		{"long delimiter", "data:\n  path: x.csv\n  delimiter: \";;\"\n", "delimiter"},
		{"minK too small", "clustering:\n  minK: 1\n", "minK"},
		{"maxK below minK", "clustering:\n  minK: 4\n  maxK: 3\ndefaultK: 4\n", "maxK"},
		{"defaultK out of range", "defaultK: 9\n", "defaultK"},
		{"half artifacts", "artifacts:\n  scaler: s.json\n  model: \"\"\n", "artifacts"},
		{"bad port", "http:\n  port: 70000\n", "port"},
		{"bad yaml", "data: [\n", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Data.Path = "/data/incidents.csv"
	cfg.Artifacts = ArtifactsConfig{}
	cfg.DefaultK = 4

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Data.Path != "/data/incidents.csv" {
		t.Errorf("Data.Path = %q", loaded.Data.Path)
	}
	if loaded.DefaultK != 4 {
		t.Errorf("DefaultK = %d, want 4", loaded.DefaultK)
	}
}

func TestConfig_EffectiveK(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.EffectiveK(5); got != 5 {
		t.Errorf("EffectiveK(5) = %d", got)
	}
	if got := cfg.EffectiveK(0); got != 3 {
		t.Errorf("EffectiveK(0) = %d, want default 3", got)
	}
	cfg.DefaultK = 0
	if got := cfg.EffectiveK(0); got != 2 {
		t.Errorf("EffectiveK(0) without default = %d, want minK 2", got)
	}
}
