package config

import (
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env     string `mapstructure:"env"`
	Port    int    `mapstructure:"port"`
	HubName string `mapstructure:"hub_name"`
}

type BusConfig struct {
	// Kind selects the transport: "nats" or "memory" (single node).
	Kind string `mapstructure:"kind"`
	URL  string `mapstructure:"url"`
}

type BackplaneConfig struct {
	AckTimeoutSeconds    int `mapstructure:"ack_timeout_seconds"`
	ReconnectWaitSeconds int `mapstructure:"reconnect_wait_seconds"`
	ReconnectPollMillis  int `mapstructure:"reconnect_poll_millis"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Pass   string `mapstructure:"password"`
	DB     int    `mapstructure:"db"`
	Prefix string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	TopicClientEvent string   `mapstructure:"topic_client_events"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Bus       BusConfig       `mapstructure:"bus"`
	Backplane BackplaneConfig `mapstructure:"backplane"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	WS        WSConfig        `mapstructure:"ws"`

	// derived
	AckTimeout    time.Duration
	ReconnectWait time.Duration
	ReconnectPoll time.Duration
	PingInterval  time.Duration
	WriteDeadline time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.HubName == "" {
		c.App.HubName = "chat"
	}
	if c.Bus.Kind == "" {
		c.Bus.Kind = "nats"
	}
	if c.Bus.URL == "" {
		c.Bus.URL = "nats://localhost:4222"
	}
	if c.Backplane.AckTimeoutSeconds == 0 {
		c.Backplane.AckTimeoutSeconds = 10
	}
	if c.Backplane.ReconnectWaitSeconds == 0 {
		c.Backplane.ReconnectWaitSeconds = 60
	}
	if c.Backplane.ReconnectPollMillis == 0 {
		c.Backplane.ReconnectPollMillis = 250
	}
	if c.WS.PingIntervalSeconds == 0 {
		c.WS.PingIntervalSeconds = 25
	}
	if c.WS.WriteDeadlineSeconds == 0 {
		c.WS.WriteDeadlineSeconds = 10
	}
	if c.WS.MaxMessageSizeBytes == 0 {
		c.WS.MaxMessageSizeBytes = 65536
	}

	c.AckTimeout = time.Duration(c.Backplane.AckTimeoutSeconds) * time.Second
	c.ReconnectWait = time.Duration(c.Backplane.ReconnectWaitSeconds) * time.Second
	c.ReconnectPoll = time.Duration(c.Backplane.ReconnectPollMillis) * time.Millisecond
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second

	return &c, nil
}
