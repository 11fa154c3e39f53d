package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func Test_Load_Defaults(t *testing.T) {
	req := require.New(t)

	p := writeFile(t, "min.yml", `
mysql:
  dsn: "root:root@tcp(127.0.0.1:3306)/clothes_shop"
rocketmq:
  name_server: "127.0.0.1:9876"
  topic: "chat-events"
auth:
  token:
    secret: "0123456789abcdef"
`)
	c, err := Load(p)
	req.NoError(err)

	req.Equal(":8080", c.HTTP.Addr)
	req.Equal(3*time.Second, c.Timeout.Std())
	req.Equal(50, c.MySQL.MaxOpenConns)
	req.Equal(5, c.RocketMQ.ConnectRetries)
	req.Equal(time.Second, c.RocketMQ.ConnectBackoff.Std())
	req.Equal(24*time.Hour, c.Dedupe.TTL.Std())
	req.Equal(24, c.Page.DefaultLimit)
	req.Equal(100, c.Page.MaxLimit)
	req.Equal(30*time.Second, c.WS.PingInterval.Std())
	req.Equal(256, c.WS.OutQueue)
	req.Equal("Authorization", c.Auth.Token.Header)
	req.Equal("Bearer ", c.Auth.Token.BearerPrefix)
	req.Equal("shop:token:", c.Auth.Token.RedisPrefix)
	req.Equal(30, c.Auth.Token.TTLDays)
	req.Equal([]string{"/healthz", "/metrics", "/ws"}, c.Auth.PublicPaths)
}

func Test_Load_LaterFileOverrides(t *testing.T) {
	req := require.New(t)

	common := writeFile(t, "common.yml", `
http:
  addr: ":8080"
redis:
  addr: "127.0.0.1:6379"
page:
  default_limit: 24
`)
	override := writeFile(t, "chat.yml", `
http:
  addr: ":9090"
page:
  default_limit: 10
`)
	c, err := Load(common + "," + override)
	req.NoError(err)

	req.Equal(":9090", c.HTTP.Addr)
	req.Equal(10, c.Page.DefaultLimit)
	// untouched keys from the first file survive
	req.Equal("127.0.0.1:6379", c.Redis.Addr)
}

func Test_Load_Errors(t *testing.T) {
	req := require.New(t)

	_, err := Load("")
	req.Error(err)

	_, err = Load("   ")
	req.Error(err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	req.Error(err)

	bad := writeFile(t, "bad.yml", "http: [not: a: map")
	_, err = Load(bad)
	req.Error(err)
}

func Test_Load_Durations(t *testing.T) {
	req := require.New(t)

	p := writeFile(t, "dur.yml", `
timeout: 5s
dedupe:
  ttl: 48h
ws:
  write_timeout: 2s
  ping_interval: 15s
mysql:
  conn_max_life: 1h
`)
	c, err := Load(p)
	req.NoError(err)

	req.Equal(5*time.Second, c.Timeout.Std())
	req.Equal(48*time.Hour, c.Dedupe.TTL.Std())
	req.Equal(2*time.Second, c.WS.WriteTimeout.Std())
	req.Equal(15*time.Second, c.WS.PingInterval.Std())
	req.Equal(time.Hour, c.MySQL.ConnMaxLife.Std())
}
