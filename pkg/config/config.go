// Package config loads node configuration from YAML files and environment
// overrides, matching the §6 "Config surface" of the specification.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/provchain/core/pkg/utils"
)

// Config is the unified node configuration. Field groups mirror spec §6
// exactly: network, consensus, storage, integrity.
type Config struct {
	Network struct {
		NetworkID     string        `mapstructure:"network_id" json:"network_id"`
		ListenPort    uint16        `mapstructure:"listen_port" json:"listen_port"`
		KnownPeers    []string      `mapstructure:"known_peers" json:"known_peers"`
		MaxPeers      uint32        `mapstructure:"max_peers" json:"max_peers"`
		PingInterval  time.Duration `mapstructure:"ping_interval" json:"ping_interval"`
		PeerTimeout   time.Duration `mapstructure:"peer_timeout" json:"peer_timeout"`
		DiscoveryTag  string        `mapstructure:"discovery_tag" json:"discovery_tag"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		IsAuthority      bool          `mapstructure:"is_authority" json:"is_authority"`
		AuthorityKeyPath string        `mapstructure:"authority_key_path" json:"authority_key_path"`
		AuthorityKeys    []string      `mapstructure:"authority_keys" json:"authority_keys"`
		BlockInterval    time.Duration `mapstructure:"block_interval" json:"block_interval"`
		MaxBlockSize     int64         `mapstructure:"max_block_size" json:"max_block_size"`
		GraceSlots       uint32        `mapstructure:"grace_slots" json:"grace_slots"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		DataDir      string `mapstructure:"data_dir" json:"data_dir"`
		CacheSizeMB  uint32 `mapstructure:"cache_size_mb" json:"cache_size_mb"`
		Persistent   bool   `mapstructure:"persistent" json:"persistent"`
	} `mapstructure:"storage" json:"storage"`

	Integrity struct {
		MonitorLevel    string        `mapstructure:"monitor_level" json:"monitor_level"`
		MonitorInterval time.Duration `mapstructure:"monitor_interval" json:"monitor_interval"`
		AlertSinks      []string      `mapstructure:"alert_sinks" json:"alert_sinks"`
	} `mapstructure:"integrity" json:"integrity"`
}

// Default returns a Config populated with conservative defaults, used when
// no config file is present (e.g. in tests).
func Default() Config {
	var c Config
	c.Network.NetworkID = "provchain-dev"
	c.Network.ListenPort = 4001
	c.Network.MaxPeers = 32
	c.Network.PingInterval = 15 * time.Second
	c.Network.PeerTimeout = 60 * time.Second
	c.Network.DiscoveryTag = "provchain-mdns"
	c.Consensus.BlockInterval = 10 * time.Second
	c.Consensus.MaxBlockSize = 4 << 20
	c.Consensus.GraceSlots = 1
	c.Storage.DataDir = utils.EnvOrDefault("PROVCHAIN_DATA_DIR", "./data")
	c.Storage.Persistent = true
	c.Integrity.MonitorLevel = "Standard"
	c.Integrity.MonitorInterval = 30 * time.Second
	return c
}

// Load reads a YAML configuration file at path, merging in environment
// variable overrides (prefixed PROVCHAIN_), and falls back to Default()
// values for anything unset.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PROVCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "read config")
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}
