// Package bridgeconfig implements the BridgeConfig collaborator described
// in spec.md §6: the recognized options shared by every sink endpoint's
// Kafka Consumer Worker. Loading is out of scope for the bridge's core
// (spec.md §1 "process bootstrap and configuration loading"); this package
// only defines the shape and a viper-backed loader, grounded on
// donnigundala-dgcore's config.Load pattern (env + YAML, env wins).
package bridgeconfig

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// BridgeConfig holds the options enumerated in spec.md §6, plus the
// ambient tuning knobs every endpoint needs (channel buffer, poll timeout).
type BridgeConfig struct {
	BootstrapServers []string `mapstructure:"bootstrap_servers"`
	KeyDeserializer  string   `mapstructure:"key_deserializer"`
	ValueDeserializer string  `mapstructure:"value_deserializer"`
	EnableAutoCommit bool     `mapstructure:"enable_auto_commit"`
	AutoOffsetReset  string   `mapstructure:"auto_offset_reset"`

	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	ChannelBuffer int           `mapstructure:"channel_buffer"`
	LogLevel      string        `mapstructure:"log_level"`
}

func defaults() BridgeConfig {
	return BridgeConfig{
		BootstrapServers: []string{"localhost:9092"},
		KeyDeserializer:  "string",
		ValueDeserializer: "bytes",
		EnableAutoCommit: false,
		AutoOffsetReset:  "earliest",
		PollTimeout:      250 * time.Millisecond,
		ChannelBuffer:    64,
		LogLevel:         "info",
	}
}

// Load reads BridgeConfig from an optional file (YAML/TOML/JSON, anything
// viper supports) at path, overlaid with AMQP_KAFKA_BRIDGE_-prefixed
// environment variables, falling back to defaults() for anything unset. An
// empty path skips the file lookup.
func Load(path string) (BridgeConfig, error) {
	v := viper.New()
	for key, val := range structToMap(defaults()) {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("AMQP_KAFKA_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return BridgeConfig{}, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	var cfg BridgeConfig
	decoderOpts := func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}
	if err := v.Unmarshal(&cfg, decoderOpts); err != nil {
		return BridgeConfig{}, errors.Wrap(err, "decoding bridge config")
	}
	return cfg, nil
}

func structToMap(cfg BridgeConfig) map[string]interface{} {
	return map[string]interface{}{
		"bootstrap_servers":  cfg.BootstrapServers,
		"key_deserializer":   cfg.KeyDeserializer,
		"value_deserializer": cfg.ValueDeserializer,
		"enable_auto_commit": cfg.EnableAutoCommit,
		"auto_offset_reset":  cfg.AutoOffsetReset,
		"poll_timeout":       cfg.PollTimeout,
		"channel_buffer":     cfg.ChannelBuffer,
		"log_level":          cfg.LogLevel,
	}
}
