// Package config declares pubserver's command-line and environment
// configuration, parsed with kong.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/aozorahack/pubserver2/pkg/content"
	"github.com/aozorahack/pubserver2/pkg/fetch"
	"github.com/aozorahack/pubserver2/pkg/logging"
	"github.com/aozorahack/pubserver2/pkg/transform"
)

// Globals are shared by every subcommand.
type Globals struct {
	LogLevel  string `env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Minimum log level."`
	LogPretty bool   `env:"LOG_PRETTY" help:"Human-readable console logs instead of JSON."`
	DB        string `env:"AOZORA_DB" default:"aozora.db" help:"SQLite catalog path."`
}

// Logging returns the logger configuration.
func (g Globals) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(g.LogLevel)
	cfg.Pretty = g.LogPretty
	return cfg
}

// Serve configures the HTTP server.
type Serve struct {
	ListenAddr        string        `env:"LISTEN_ADDR" help:"Listen address e.g. 0.0.0.0:5000. Overrides --port."`
	Port              int           `env:"PORT" default:"5000" help:"Listen port when no listen address is set."`
	CacheURL          string        `env:"CACHE_URL,REDIS_URL" default:"redis://127.0.0.1:6379/0" help:"Cache backend: redis://, rediss:// or memory://."`
	CacheTTL          int           `env:"CACHE_TTL" default:"3600" help:"Content cache lifetime in seconds."`
	PublicDir         string        `env:"PUBLIC_DIR" help:"Directory of static files served at /."`
	SiteRoot          string        `env:"SITE_ROOT" default:"https://www.aozora.gr.jp/" help:"Canonical site root used when rewriting references."`
	UpstreamTimeout   time.Duration `env:"UPSTREAM_TIMEOUT" default:"30s" help:"Timeout of one upstream fetch."`
	UserAgent         string        `env:"USER_AGENT" help:"User-Agent sent upstream (default: a browser string)."`
	DNSRefresh        time.Duration `env:"DNS_REFRESH" default:"5m" help:"Upstream DNS cache refresh interval (0 disables the cache)."`
	MetricsListenAddr string        `env:"METRICS_LISTEN_ADDR" default:"0.0.0.0:9102" help:"Listen address for prometheus metrics (empty disables)."`
	OTLPEndpoint      string        `env:"OTLP_ENDPOINT" help:"OTLP gRPC endpoint for traces (empty disables)."`
	TraceSampleRate   float64       `env:"TRACE_SAMPLE_RATE" default:"1.0" help:"Fraction of traces sampled."`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s" help:"Graceful shutdown deadline."`
}

// Addr returns the HTTP listen address.
func (s Serve) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return net.JoinHostPort("", strconv.Itoa(s.Port))
}

// TTL returns the content cache lifetime.
func (s Serve) TTL() time.Duration {
	if s.CacheTTL <= 0 {
		return content.DefaultTTL
	}
	return time.Duration(s.CacheTTL) * time.Second
}

// Fetch returns the upstream fetcher configuration.
func (s Serve) Fetch() fetch.Config {
	cfg := fetch.DefaultConfig()
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	if s.UpstreamTimeout > 0 {
		cfg.Timeout = s.UpstreamTimeout
	}
	return cfg
}

// Root returns the site root, falling back to the default.
func (s Serve) Root() string {
	if s.SiteRoot == "" {
		return transform.DefaultSiteRoot
	}
	return s.SiteRoot
}

// Import configures the import subcommand.
type Import struct {
	Books    string `type:"existingfile" help:"JSON-lines file of book documents."`
	Persons  string `type:"existingfile" help:"JSON-lines file of person documents."`
	Workers  string `type:"existingfile" help:"JSON-lines file of worker documents."`
	Rankings string `type:"existingfile" help:"JSON-lines file of ranking records."`
}
