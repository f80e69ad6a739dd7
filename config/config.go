package config

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config captures the knobs for a training run. batch_size, learning_rate
// and epochs are required; everything else has a default.
type Config struct {
	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Epochs       int     `yaml:"epochs" json:"epochs"`

	DataDir      string `yaml:"data_dir" json:"data_dir"`
	OutputDir    string `yaml:"output_dir" json:"output_dir"`
	InceptionDir string `yaml:"inception_dir" json:"inception_dir"`
	ImageSize    int    `yaml:"image_size" json:"image_size"`
	Seed         int64  `yaml:"seed" json:"seed"`
	Device       string `yaml:"device" json:"device"`

	AdamBeta1 float64 `yaml:"adam_beta1" json:"adam_beta1"`
	AdamBeta2 float64 `yaml:"adam_beta2" json:"adam_beta2"`
	AdamEps   float64 `yaml:"adam_eps" json:"adam_eps"`

	LogEvery   int `yaml:"log_every" json:"log_every"`
	GridImages int `yaml:"grid_images" json:"grid_images"`
	GridRows   int `yaml:"grid_rows" json:"grid_rows"`
	ISSplits   int `yaml:"is_splits" json:"is_splits"`
}

// Overrides captures CLI supplied values. Zero values leave the file value in
// place; Epochs is a pointer so a run can be forced to zero epochs.
type Overrides struct {
	DataDir      string
	OutputDir    string
	InceptionDir string
	BatchSize    int
	LearningRate float64
	Epochs       *int
	Seed         int64
	Device       string
}

// fileKeys mirrors Config with pointers so required keys can be told apart
// from zero values.
type fileKeys struct {
	BatchSize    *int     `yaml:"batch_size"`
	LearningRate *float64 `yaml:"learning_rate"`
	Epochs       *int     `yaml:"epochs"`
}

const defaultLogEvery = 10

// Default returns a Config holding every default value, with the required
// keys zeroed.
func Default() *Config {
	return &Config{
		DataDir:      "data/training_data",
		OutputDir:    ".",
		InceptionDir: "~/.cache/nextframe/inceptionv3",
		ImageSize:    64,
		Device:       "auto",
		AdamBeta1:    0.9,
		AdamBeta2:    0.999,
		AdamEps:      1e-8,
		LogEvery:     defaultLogEvery,
		GridImages:   16,
		GridRows:     4,
		ISSplits:     10,
	}
}

// Load reads a YAML config from path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML bytes into a validated Config. Unknown keys are errors.
func Parse(raw []byte) (*Config, error) {
	var keys fileKeys
	if err := yaml.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	switch {
	case keys.BatchSize == nil:
		return nil, errors.New("missing required key batch_size")
	case keys.LearningRate == nil:
		return nil, errors.New("missing required key learning_rate")
	case keys.Epochs == nil:
		return nil, errors.New("missing required key epochs")
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict(bytes.TrimSpace(raw), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any set override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.InceptionDir != "" {
		c.InceptionDir = o.InceptionDir
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Epochs != nil {
		c.Epochs = *o.Epochs
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Device != "" {
		c.Device = o.Device
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Epochs < 0 {
		return errors.Errorf("epochs must be >= 0 (got %d)", c.Epochs)
	}
	if c.ImageSize < 8 || c.ImageSize%4 != 0 {
		return errors.Errorf("image_size must be a multiple of 4 and >= 8 (got %d)", c.ImageSize)
	}
	if c.AdamBeta1 < 0 || c.AdamBeta1 >= 1 || c.AdamBeta2 < 0 || c.AdamBeta2 >= 1 {
		return errors.Errorf("adam betas must be in [0,1) (got %g, %g)", c.AdamBeta1, c.AdamBeta2)
	}
	if c.AdamEps <= 0 {
		return errors.Errorf("adam_eps must be > 0 (got %g)", c.AdamEps)
	}
	if c.GridImages <= 0 || c.GridRows <= 0 {
		return errors.Errorf("grid_images and grid_rows must be > 0 (got %d, %d)", c.GridImages, c.GridRows)
	}
	if c.ISSplits <= 0 {
		return errors.Errorf("is_splits must be > 0 (got %d)", c.ISSplits)
	}
	if c.LogEvery <= 0 {
		return errors.Errorf("log_every must be > 0 (got %d)", c.LogEvery)
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must be set")
	}
	if c.InceptionDir == "" {
		return errors.New("inception_dir must be set")
	}
	return nil
}
