// Package config loads the rollcall configuration file.
//
// A config file is YAML. It is checked against an embedded CUE schema
// before it is decoded, so type and enum mistakes are reported with the
// offending path; decoding is strict and rejects unknown keys.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rollcall/internal/detector"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/notify"
	"github.com/roach88/rollcall/internal/store"
)

//go:embed schema.cue
var schemaSource string

// DefaultDatabase is used when the config names no database.
const DefaultDatabase = "rollcall.db"

// Config is the complete rollcall configuration.
type Config struct {
	ClassLabel string   `yaml:"class_label"`
	Database   string   `yaml:"database"`
	Roster     string   `yaml:"roster"`
	Operator   Operator `yaml:"operator"`
	Sync       Sync     `yaml:"sync"`
	Detector   Detector `yaml:"detector"`
	MQTT       MQTT     `yaml:"mqtt"`
	Log        Log      `yaml:"log"`
}

// Operator identifies who is marking attendance.
type Operator struct {
	ID    string `yaml:"id"`
	Admin bool   `yaml:"admin"`
}

// Sync holds engine persistence settings.
type Sync struct {
	Debounce       time.Duration `yaml:"debounce"`
	ConflictPolicy string        `yaml:"conflict_policy"`
	FeedPoll       time.Duration `yaml:"feed_poll"`
}

// Detector holds camera detector settings. An empty URL disables the camera.
type Detector struct {
	URL           string        `yaml:"url"`
	PollRunning   time.Duration `yaml:"poll_running"`
	PollIdle      time.Duration `yaml:"poll_idle"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MQTT holds save-state notifier settings. An empty broker disables it.
type MQTT struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	QoS         byte   `yaml:"qos"`
}

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, validates and decodes the config at path. Relative database
// and roster paths are resolved against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse validates and decodes config data. name is used in error messages.
func Parse(name string, data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config %s: empty document", name)
	}
	if err := validateSchema(name, data); err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.ClassLabel == "" {
		errs = append(errs, errors.New("class_label is required"))
	}
	if _, err := engine.ParseConflictPolicy(c.Sync.ConflictPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Detector.PollRunning > c.Detector.PollIdle {
		errs = append(errs, fmt.Errorf("detector.poll_running (%s) must not exceed detector.poll_idle (%s)",
			c.Detector.PollRunning, c.Detector.PollIdle))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d out of range", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

// Policy returns the parsed conflict policy.
func (c *Config) Policy() engine.ConflictPolicy {
	p, err := engine.ParseConflictPolicy(c.Sync.ConflictPolicy)
	if err != nil {
		return engine.RemoteWins
	}
	return p
}

// PollerConfig returns the detector poller settings.
func (c *Config) PollerConfig() detector.PollerConfig {
	return detector.PollerConfig{
		PollRunning:   c.Detector.PollRunning,
		PollIdle:      c.Detector.PollIdle,
		FrameInterval: c.Detector.FrameInterval,
	}
}

// NotifyConfig returns the MQTT publisher settings.
func (c *Config) NotifyConfig() notify.Config {
	return notify.Config{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         c.MQTT.QoS,
	}
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Sync.Debounce <= 0 {
		c.Sync.Debounce = engine.DefaultDebounce
	}
	if c.Sync.ConflictPolicy == "" {
		c.Sync.ConflictPolicy = string(engine.RemoteWins)
	}
	if c.Sync.FeedPoll <= 0 {
		c.Sync.FeedPoll = store.DefaultFeedPoll
	}
	if c.Detector.PollRunning <= 0 {
		c.Detector.PollRunning = detector.DefaultPollRunning
	}
	if c.Detector.PollIdle <= 0 {
		c.Detector.PollIdle = detector.DefaultPollIdle
	}
	if c.Detector.FrameInterval <= 0 {
		c.Detector.FrameInterval = detector.DefaultFrameInterval
	}
	if c.Detector.Timeout <= 0 {
		c.Detector.Timeout = detector.DefaultTimeout
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = notify.DefaultTopicPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "rollcall"
		if c.Operator.ID != "" {
			c.MQTT.ClientID += "-" + c.Operator.ID
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) resolvePaths(dir string) {
	if c.Database != "" && c.Database != ":memory:" && !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(dir, c.Database)
	}
	if c.Roster != "" && !filepath.IsAbs(c.Roster) {
		c.Roster = filepath.Join(dir, c.Roster)
	}
}

// validateSchema unifies the raw document with #Config.
func validateSchema(name string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	return nil
}
