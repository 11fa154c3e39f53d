package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a yaml-parseable time.Duration ("3s", "30m", "24h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Env string `yaml:"env"`

	HTTP struct {
		Addr string `yaml:"addr"` // ":8080"
	} `yaml:"http"`

	MySQL struct {
		DSN          string   `yaml:"dsn"`
		MaxOpenConns int      `yaml:"max_open_conns"`
		MaxIdleConns int      `yaml:"max_idle_conns"`
		ConnMaxLife  Duration `yaml:"conn_max_life"`
		ConnMaxIdle  Duration `yaml:"conn_max_idle"`
	} `yaml:"mysql"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		Database int    `yaml:"database"`
	} `yaml:"redis"`

	RocketMQ struct {
		NameServer    string `yaml:"name_server"`
		Topic         string `yaml:"topic"`
		Tag           string `yaml:"tag,omitempty"`
		ProducerGroup string `yaml:"producer_group"`
		ConsumerGroup string `yaml:"consumer_group"`
		// Connect retries at startup: capped exponential backoff.
		ConnectRetries int      `yaml:"connect_retries"`
		ConnectBackoff Duration `yaml:"connect_backoff"`
	} `yaml:"rocketmq"`

	// Timeout bounds storage writes and awaited broker publishes.
	Timeout Duration `yaml:"timeout"`

	Dedupe struct {
		TTL Duration `yaml:"ttl"`
	} `yaml:"dedupe"`

	Page struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"page"`

	WS struct {
		WriteTimeout Duration `yaml:"write_timeout"`
		PingInterval Duration `yaml:"ping_interval"`
		OutQueue     int      `yaml:"out_queue"`
	} `yaml:"ws"`

	Auth struct {
		Token struct {
			Header       string `yaml:"header"`
			BearerPrefix string `yaml:"bearer_prefix"`
			QueryKey     string `yaml:"query_key"`
			RedisPrefix  string `yaml:"redis_prefix"`
			TTLDays      int    `yaml:"ttl_days"`
			Secret       string `yaml:"secret"`
		} `yaml:"token"`

		PublicPaths []string `yaml:"public_paths"`
	} `yaml:"auth"`
}

// Load supports comma-separated config files: "-c common.yml,chat.yml".
// Later files override earlier ones (successive unmarshal into the struct).
func Load(pathList string) (*Config, error) {
	if strings.TrimSpace(pathList) == "" {
		return nil, errors.New("config path required (e.g. -c ./config.yml or -c common.yml,chat.yml)")
	}

	var c Config
	paths := strings.Split(pathList, ",")
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// defaults
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(3 * time.Second)
	}
	if c.MySQL.MaxOpenConns <= 0 {
		c.MySQL.MaxOpenConns = 50
	}
	if c.MySQL.MaxIdleConns <= 0 {
		c.MySQL.MaxIdleConns = 25
	}
	if c.MySQL.ConnMaxLife == 0 {
		c.MySQL.ConnMaxLife = Duration(30 * time.Minute)
	}
	if c.MySQL.ConnMaxIdle == 0 {
		c.MySQL.ConnMaxIdle = Duration(5 * time.Minute)
	}
	if c.RocketMQ.ConnectRetries <= 0 {
		c.RocketMQ.ConnectRetries = 5
	}
	if c.RocketMQ.ConnectBackoff == 0 {
		c.RocketMQ.ConnectBackoff = Duration(1 * time.Second)
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = Duration(24 * time.Hour)
	}
	if c.Page.DefaultLimit <= 0 {
		c.Page.DefaultLimit = 24
	}
	if c.Page.MaxLimit <= 0 {
		c.Page.MaxLimit = 100
	}
	if c.WS.WriteTimeout == 0 {
		c.WS.WriteTimeout = Duration(5 * time.Second)
	}
	if c.WS.PingInterval == 0 {
		c.WS.PingInterval = Duration(30 * time.Second)
	}
	if c.WS.OutQueue <= 0 {
		c.WS.OutQueue = 256
	}

	// auth defaults
	if c.Auth.Token.Header == "" {
		c.Auth.Token.Header = "Authorization"
	}
	if c.Auth.Token.BearerPrefix == "" {
		c.Auth.Token.BearerPrefix = "Bearer "
	}
	if c.Auth.Token.QueryKey == "" {
		c.Auth.Token.QueryKey = "token"
	}
	if c.Auth.Token.RedisPrefix == "" {
		c.Auth.Token.RedisPrefix = "shop:token:"
	}
	if c.Auth.Token.TTLDays == 0 {
		c.Auth.Token.TTLDays = 30
	}
	if c.Auth.PublicPaths == nil {
		c.Auth.PublicPaths = []string{"/healthz", "/metrics", "/ws"}
	}
	return &c, nil
}
