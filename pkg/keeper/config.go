package keeper

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/sessionstream/pkg/transport"
)

// Config gathers the keeper's knobs in one struct so tests can shorten the
// timers deterministically. The three durations must satisfy
// KeepAlivePeriod < GuaranteeMaxHold < SnapshotTTL: healthy keep-alives
// refresh the guarantee well before it expires, and persisted state outlives
// a keep-alive cycle by orders of magnitude.
type Config struct {
	KeepAlivePeriod  time.Duration
	GuaranteeMaxHold time.Duration
	SnapshotTTL      time.Duration

	// SnapshotPath is the sqlite file for durable snapshots; empty selects
	// the in-memory store.
	SnapshotPath string
	SnapshotSlot string

	CommandTopic string
	ReplyTopic   string
	PollTopic    string

	// GuaranteeKey and IndicatorKey are used by the redis lease backend.
	GuaranteeKey string
	IndicatorKey string

	Redis transport.Settings
}

func DefaultConfig() Config {
	return Config{
		KeepAlivePeriod:  30 * time.Second,
		GuaranteeMaxHold: 900 * time.Second,
		SnapshotTTL:      3600 * time.Second,
		SnapshotSlot:     "session_states",
		CommandTopic:     "sessionstream.commands",
		ReplyTopic:       "sessionstream.replies",
		PollTopic:        "sessionstream.poll",
		GuaranteeKey:     "sessionstream:guarantee",
		IndicatorKey:     "sessionstream:indicator",
		Redis:            transport.DefaultSettings(),
	}
}

func (c Config) Validate() error {
	if c.KeepAlivePeriod <= 0 {
		return errors.New("config: keep_alive_period must be positive")
	}
	if c.KeepAlivePeriod >= c.GuaranteeMaxHold {
		return errors.New("config: keep_alive_period must be shorter than guarantee_max_hold")
	}
	if c.GuaranteeMaxHold >= c.SnapshotTTL {
		return errors.New("config: guarantee_max_hold must be shorter than snapshot_ttl")
	}
	if c.SnapshotSlot == "" {
		return errors.New("config: snapshot_slot is empty")
	}
	if c.CommandTopic == "" || c.ReplyTopic == "" || c.PollTopic == "" {
		return errors.New("config: command, reply and poll topics are required")
	}
	return nil
}

// fileConfig is the yaml schema. Durations are numeric seconds, matching how
// the thresholds are usually quoted (30 / 900 / 3600).
type fileConfig struct {
	KeepAliveSeconds        int    `yaml:"keep_alive_seconds"`
	GuaranteeMaxHoldSeconds int    `yaml:"guarantee_max_hold_seconds"`
	SnapshotTTLSeconds      int    `yaml:"snapshot_ttl_seconds"`
	SnapshotPath            string `yaml:"snapshot_path"`
	SnapshotSlot            string `yaml:"snapshot_slot"`
	CommandTopic            string `yaml:"command_topic"`
	ReplyTopic              string `yaml:"reply_topic"`
	PollTopic               string `yaml:"poll_topic"`
	GuaranteeKey            string `yaml:"guarantee_key"`
	IndicatorKey            string `yaml:"indicator_key"`

	Redis *transport.Settings `yaml:"redis"`
}

// LoadConfig reads a yaml config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	// Decoding redis settings in place keeps defaults for keys the file
	// does not mention.
	fc := fileConfig{Redis: &cfg.Redis}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}
	if fc.KeepAliveSeconds > 0 {
		cfg.KeepAlivePeriod = time.Duration(fc.KeepAliveSeconds) * time.Second
	}
	if fc.GuaranteeMaxHoldSeconds > 0 {
		cfg.GuaranteeMaxHold = time.Duration(fc.GuaranteeMaxHoldSeconds) * time.Second
	}
	if fc.SnapshotTTLSeconds > 0 {
		cfg.SnapshotTTL = time.Duration(fc.SnapshotTTLSeconds) * time.Second
	}
	if fc.SnapshotPath != "" {
		cfg.SnapshotPath = fc.SnapshotPath
	}
	if fc.SnapshotSlot != "" {
		cfg.SnapshotSlot = fc.SnapshotSlot
	}
	if fc.CommandTopic != "" {
		cfg.CommandTopic = fc.CommandTopic
	}
	if fc.ReplyTopic != "" {
		cfg.ReplyTopic = fc.ReplyTopic
	}
	if fc.PollTopic != "" {
		cfg.PollTopic = fc.PollTopic
	}
	if fc.GuaranteeKey != "" {
		cfg.GuaranteeKey = fc.GuaranteeKey
	}
	if fc.IndicatorKey != "" {
		cfg.IndicatorKey = fc.IndicatorKey
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
