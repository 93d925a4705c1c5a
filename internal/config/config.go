package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	SelfID   string `mapstructure:"self_id"`
	CallKind string `mapstructure:"call_kind"`

	SignalURL      string        `mapstructure:"signal_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	MonitorInterval  time.Duration `mapstructure:"monitor_interval"`
	GraceWindow      time.Duration `mapstructure:"grace_window"`
	ReconnectInitial time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`

	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8081)
	v.SetDefault("call_kind", "roulette")
	v.SetDefault("signal_url", "ws://localhost:8080/ws")
	v.SetDefault("connect_timeout", "10s")
	v.SetDefault("settle_delay", "150ms")
	v.SetDefault("monitor_interval", "2s")
	v.SetDefault("grace_window", "2s")
	v.SetDefault("reconnect_initial", "500ms")
	v.SetDefault("reconnect_max", "30s")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.SelfID == "" {
		cfg.SelfID = uuid.NewString()
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	if !cfg.HasTURN() {
		// Symmetric-NAT pairs cannot connect on STUN alone.
		log.Warn().Str("module", "config").Msg("no TURN server configured, some peers will be unreachable")
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("self_id", cfg.SelfID).Str("signal_url", cfg.SignalURL).
		Msg("configured")
	return &cfg, nil
}

func (c *Config) HasTURN() bool {
	for _, s := range c.ICEServers {
		for _, u := range s.URLs {
			if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
				return true
			}
		}
	}
	return false
}

// WebRTCICEServers converts the configured servers to pion's type.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		out = append(out, ice)
	}
	return out
}
