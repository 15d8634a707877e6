// Package config defines the YAML configuration of the videoinput CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/videoinput/compositor"
	"github.com/xaionaro-go/videoinput/decoder/libav"
	sourcelibav "github.com/xaionaro-go/videoinput/source/libav"
	"github.com/xaionaro-go/videoinput/types"
	"gopkg.in/yaml.v3"
)

var DefaultFramerate = types.Rational{Num: 30, Den: 1}

type Config struct {
	Compositor compositor.Config `yaml:"compositor"`
	Decoder    DecoderConfig     `yaml:"decoder,omitempty"`
	Inputs     []InputConfig     `yaml:"inputs"`
}

type DecoderConfig struct {
	// Options are passed to every libav decoder (e.g. "threads").
	Options          types.DictionaryItems `yaml:"options,omitempty"`
	RequestQueueSize int                   `yaml:"request_queue_size,omitempty"`
}

type InputConfig struct {
	// ID is generated if empty.
	ID              types.InputID         `yaml:"id,omitempty"`
	URL             string                `yaml:"url"`
	AuthKey         string                `yaml:"auth_key,omitempty"`
	Options         types.DictionaryItems `yaml:"options,omitempty"`
	// MaxQueuedChunks defaults to a value depending on whether the URL
	// is a live stream.
	MaxQueuedChunks int                   `yaml:"max_queued_chunks,omitempty"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes the YAML configuration, rejecting unknown fields, and
// applies the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Compositor.Framerate == (types.Rational{}) {
		c.Compositor.Framerate = DefaultFramerate
	}
	for idx := range c.Inputs {
		if c.Inputs[idx].ID == "" {
			c.Inputs[idx].ID = types.InputID(uuid.New().String())
		}
	}
}

// Validate checks that the values are usable.
func (c *Config) Validate() error {
	if !c.Compositor.Framerate.IsValid() {
		return fmt.Errorf("invalid framerate: %s", c.Compositor.Framerate)
	}
	if c.Compositor.Input.MaxBufferingSize < 0 {
		return fmt.Errorf("max_buffering_size must not be negative: %d", c.Compositor.Input.MaxBufferingSize)
	}
	ids := map[types.InputID]struct{}{}
	for idx, in := range c.Inputs {
		if in.URL == "" {
			return fmt.Errorf("input #%d (%s): url is empty", idx, in.ID)
		}
		if _, ok := ids[in.ID]; ok {
			return fmt.Errorf("input #%d: duplicate id %q", idx, in.ID)
		}
		ids[in.ID] = struct{}{}
	}
	return nil
}

// AddURL appends an input with a generated ID.
func (c *Config) AddURL(url string) {
	c.Inputs = append(c.Inputs, InputConfig{
		ID:  types.InputID(uuid.New().String()),
		URL: url,
	})
}

func (in InputConfig) SourceConfig() sourcelibav.Config {
	return sourcelibav.Config{
		URL:             in.URL,
		AuthKey:         secret.New(in.AuthKey),
		Options:         in.Options,
		MaxQueuedChunks: in.MaxQueuedChunks,
	}
}

func (c DecoderConfig) Factory() *libav.Factory {
	return &libav.Factory{
		Options:          c.Options,
		RequestQueueSize: c.RequestQueueSize,
	}
}

func (c *Config) Bytes() ([]byte, error) {
	return yaml.Marshal(c)
}
