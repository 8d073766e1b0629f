package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration file
type Config struct {
	Data          DataConfig      `yaml:"data" json:"data"`
	Columns       ColumnsConfig   `yaml:"columns" json:"columns"`
	Features      []string        `yaml:"features,omitempty" json:"features,omitempty"` // empty = every numeric column
	DisasterTypes []string        `yaml:"disasterTypes,omitempty" json:"disasterTypes,omitempty"`
	Clustering    FitOptions      `yaml:"clustering" json:"clustering"`
	DefaultK      int             `yaml:"defaultK,omitempty" json:"defaultK,omitempty"`
	Artifacts     ArtifactsConfig `yaml:"artifacts" json:"artifacts"`
	HTTP          HTTPConfig      `yaml:"http" json:"http"`
	MQTT          MQTTConfig      `yaml:"mqtt" json:"mqtt"`
}

// DataConfig locates the incident table
type DataConfig struct {
	Path      string `yaml:"path" json:"path"`
	Delimiter string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
}

// ColumnsConfig names the canonical categorical fields and how to find them
type ColumnsConfig struct {
	DisasterType ColumnTarget `yaml:"disasterType" json:"disasterType"`
	Region       ColumnTarget `yaml:"region" json:"region"`
}

// ArtifactsConfig locates the pre-trained scaler and model. Both empty means
// the dashboard always fits ad hoc.
type ArtifactsConfig struct {
	Scaler string `yaml:"scaler,omitempty" json:"scaler,omitempty"`
	Model  string `yaml:"model,omitempty" json:"model,omitempty"`
}

// HTTPConfig holds dashboard server settings
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// DefaultConfig returns the settings used for the 2022 incident export
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{Path: "BencanaPWK2022.csv", Delimiter: ","},
		Columns: ColumnsConfig{
			DisasterType: ColumnTarget{Name: "Jenis_Bencana", Match: []string{"bencana", "jenis"}},
			Region:       ColumnTarget{Name: "Wilayah", Match: []string{"wilayah", "kecamatan", "region"}},
		},
		DisasterTypes: []string{
			"pohon tumbang",
			"angin puting beliung",
			"longsor tanah",
			"gempa",
			"karhutla",
			"bangunan ambruk",
			"kekeringan",
		},
		Clustering: DefaultFitOptions(),
		DefaultK:   3,
		Artifacts: ArtifactsConfig{
			Scaler: DefaultScalerFile,
			Model:  DefaultModelFile,
		},
		HTTP: HTTPConfig{Port: 8080},
		MQTT: MQTTConfig{PublishPrefix: "bencana", ClientID: "bencana-dashboard"},
	}
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig.
// Relative data and artifact paths are resolved against the config's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	config.Clustering = config.Clustering.withDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	config.Data.Path = resolvePath(base, config.Data.Path)
	config.Artifacts.Scaler = resolvePath(base, config.Artifacts.Scaler)
	config.Artifacts.Model = resolvePath(base, config.Artifacts.Model)

	return config, nil
}

// Validate checks required fields and ranges
func (c *Config) Validate() error {
	if c.Data.Path == "" {
		return fmt.Errorf("data.path is required")
	}
	if len([]rune(c.Data.Delimiter)) > 1 {
		return fmt.Errorf("data.delimiter must be a single character, got %q", c.Data.Delimiter)
	}
	if c.Columns.DisasterType.Name == "" {
		return fmt.Errorf("columns.disasterType.name is required")
	}
	if c.Columns.Region.Name == "" {
		return fmt.Errorf("columns.region.name is required")
	}
	if c.Clustering.MinK < 2 {
		return fmt.Errorf("clustering.minK must be at least 2, got %d", c.Clustering.MinK)
	}
	if c.Clustering.MaxK < c.Clustering.MinK {
		return fmt.Errorf("clustering.maxK (%d) must be >= minK (%d)", c.Clustering.MaxK, c.Clustering.MinK)
	}
	if c.DefaultK != 0 && (c.DefaultK < c.Clustering.MinK || c.DefaultK > c.Clustering.MaxK) {
		return fmt.Errorf("defaultK %d is outside %d..%d", c.DefaultK, c.Clustering.MinK, c.Clustering.MaxK)
	}
	if (c.Artifacts.Scaler == "") != (c.Artifacts.Model == "") {
		return fmt.Errorf("artifacts.scaler and artifacts.model must be set together")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range", c.HTTP.Port)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Delimiter returns the configured field separator, defaulting to a comma
func (c *Config) Delimiter() rune {
	if r := []rune(c.Data.Delimiter); len(r) == 1 {
		return r[0]
	}
	return ','
}

// EffectiveK returns k if it is set, else the configured default, else MinK.
func (c *Config) EffectiveK(k int) int {
	if k > 0 {
		return k
	}
	if c.DefaultK > 0 {
		return c.DefaultK
	}
	return c.Clustering.MinK
}

// HasArtifacts reports whether pre-trained artifact paths are configured
func (c *Config) HasArtifacts() bool {
	return c.Artifacts.Scaler != "" && c.Artifacts.Model != ""
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
