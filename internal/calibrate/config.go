package calibrate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// DefaultMinSamples is the smallest clean sample a parameter is fitted on.
const DefaultMinSamples = 10

// Config is a calibration config document.
type Config struct {
	CSVPath         string                 `yaml:"csv_path"`
	ColumnMapping   map[string]string      `yaml:"column_mapping"`
	MinSamples      int                    `yaml:"min_samples"`
	Seed            uint64                 `yaml:"seed"`
	ConfidenceLevel float64                `yaml:"confidence_level"`
	Parameters      map[string]ParamConfig `yaml:"parameters"`
	Drift           *DriftConfig           `yaml:"drift_config"`

	dir string // directory relative paths resolve against
}

// ParamConfig selects the family and data preparation for one parameter.
type ParamConfig struct {
	Distribution     string   `yaml:"distribution"`
	BootstrapSamples *int     `yaml:"bootstrap_samples"`
	Missing          string   `yaml:"missing"`
	Outliers         string   `yaml:"outliers"`
	IQRFactor        float64  `yaml:"iqr_factor"`
	Min              *float64 `yaml:"min"`
	Max              *float64 `yaml:"max"`
}

// DriftConfig names the observed and predicted columns to compare.
type DriftConfig struct {
	Observed      string  `yaml:"observed"`
	Predicted     string  `yaml:"predicted"`
	CUSUMK        float64 `yaml:"cusum_k"`
	CUSUMH        float64 `yaml:"cusum_h"`
	MAPEThreshold float64 `yaml:"mape_threshold"`
	Baseline      int     `yaml:"baseline"`
}

//go:embed schema/config.cue
var configSchema string

var (
	configOnce   sync.Once
	configMu     sync.Mutex
	configCtx    *cue.Context
	configDef    cue.Value
	configDefErr error
)

func loadConfigSchema() (cue.Value, error) {
	configOnce.Do(func() {
		configCtx = cuecontext.New()
		v := configCtx.CompileString(configSchema, cue.Filename("config.cue"))
		if err := v.Err(); err != nil {
			configDefErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		configDef = v.LookupPath(cue.ParsePath("#Config"))
	})
	return configDef, configDefErr
}

// LoadConfig reads and validates a config file. Relative csv_path values
// resolve against the file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// ParseConfig validates a YAML document against the config schema, decodes
// it and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}
	if raw == nil {
		return nil, &ConfigError{Message: "empty document"}
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}
	if err := validateConfig(doc); err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func validateConfig(doc []byte) error {
	configMu.Lock()
	defer configMu.Unlock()

	def, err := loadConfigSchema()
	if err != nil {
		return err
	}
	v := configCtx.CompileBytes(doc, cue.Filename("config.json"))
	if err := v.Err(); err != nil {
		return &ConfigError{Message: err.Error()}
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &ConfigError{Message: err.Error()}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.MinSamples == 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.ConfidenceLevel == 0 {
		c.ConfidenceLevel = DefaultConfidenceLevel
	}
	for name, p := range c.Parameters {
		if p.BootstrapSamples == nil {
			b := DefaultBootstrapSamples
			p.BootstrapSamples = &b
		}
		if p.Missing == "" {
			p.Missing = MissingDrop
		}
		if p.Outliers == "" {
			p.Outliers = OutliersIQR
		}
		if p.IQRFactor == 0 {
			p.IQRFactor = DefaultIQRFactor
		}
		c.Parameters[name] = p
	}
}

// CSVFile returns the data path, resolved against the config's directory.
func (c *Config) CSVFile() string {
	if filepath.IsAbs(c.CSVPath) || c.dir == "" {
		return c.CSVPath
	}
	return filepath.Join(c.dir, c.CSVPath)
}

// Column returns the CSV column mapped to param. Unmapped params read the
// column of the same name.
func (c *Config) Column(param string) string {
	if col, ok := c.ColumnMapping[param]; ok {
		return col
	}
	return param
}

// ParamNames returns the configured parameters in sorted order.
func (c *Config) ParamNames() []string {
	names := make([]string, 0, len(c.Parameters))
	for name := range c.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clean returns the cleaning options of a parameter.
func (p ParamConfig) Clean() CleanOptions {
	return CleanOptions{Missing: p.Missing, Outliers: p.Outliers, IQRFactor: p.IQRFactor, Min: p.Min, Max: p.Max}
}

// Options converts the drift config into test options.
func (d *DriftConfig) Options(minSamples int) DriftOptions {
	return DriftOptions{
		K:             d.CUSUMK,
		H:             d.CUSUMH,
		MAPEThreshold: d.MAPEThreshold,
		Baseline:      d.Baseline,
		MinSamples:    minSamples,
	}
}
