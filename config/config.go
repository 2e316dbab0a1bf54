// Package config loads the TOML configuration of an onion client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

const (
	defaultRequestTimeout     = 10000
	defaultMaxRequestAttempts = 3
	defaultTransport          = TransportHTTPS

	defaultPathCount        = 2
	defaultPathLength       = 3
	minPathLength           = 2
	maxPathLength           = 3
	defaultGuardCount       = 2
	defaultMinimumPoolSize  = 12
	defaultFailureThreshold = 3
	defaultRebuildBackoff   = 1000
	defaultMaxRebuildDelay  = 30000
	defaultMaxRebuilds      = 5

	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Transport names accepted in Network.Transport.
const (
	TransportHTTPS = "https"
	TransportNoise = "noise"
)

// DefaultSeeds are the public seed nodes of the storage network.
var DefaultSeeds = []string{
	"https://seed1.getsession.org",
	"https://seed2.getsession.org",
	"https://seed3.getsession.org",
}

// Network is the network section.
type Network struct {
	// Seeds are base URLs of the seed nodes used to list storage nodes.
	Seeds []string
	// RequestTimeout is the per-request timeout in milliseconds.
	RequestTimeout int
	// MaxRequestAttempts bounds retries of one onion request on fresh paths.
	MaxRequestAttempts int
	// Transport is "https" or "noise".
	Transport string
}

func (n *Network) fixup() error {
	if len(n.Seeds) == 0 {
		n.Seeds = append([]string(nil), DefaultSeeds...)
	}
	for _, s := range n.Seeds {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return fmt.Errorf("config: Network: invalid seed URL %q", s)
		}
	}
	if n.RequestTimeout <= 0 {
		n.RequestTimeout = defaultRequestTimeout
	}
	if n.MaxRequestAttempts <= 0 {
		n.MaxRequestAttempts = defaultMaxRequestAttempts
	}
	n.Transport = strings.ToLower(n.Transport)
	switch n.Transport {
	case "":
		n.Transport = defaultTransport
	case TransportHTTPS, TransportNoise:
	default:
		return fmt.Errorf("config: Network: Transport %q is invalid", n.Transport)
	}
	return nil
}

// Path is the path building section.
type Path struct {
	PathCount        int
	PathLength       int
	GuardCount       int
	MinimumPoolSize  int
	FailureThreshold int
	// MaxAge in seconds; zero keeps paths until they fail.
	MaxAge int
	// Rebuild backoff in milliseconds.
	RebuildBackoff     int
	MaxRebuildBackoff  int
	MaxRebuildAttempts int
}

func (p *Path) fixup() error {
	if p.PathCount <= 0 {
		p.PathCount = defaultPathCount
	}
	if p.PathLength <= 0 {
		p.PathLength = defaultPathLength
	}
	if p.GuardCount <= 0 {
		p.GuardCount = defaultGuardCount
	}
	if p.MinimumPoolSize <= 0 {
		p.MinimumPoolSize = defaultMinimumPoolSize
	}
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = defaultFailureThreshold
	}
	if p.RebuildBackoff <= 0 {
		p.RebuildBackoff = defaultRebuildBackoff
	}
	if p.MaxRebuildBackoff <= 0 {
		p.MaxRebuildBackoff = defaultMaxRebuildDelay
	}
	if p.MaxRebuildAttempts <= 0 {
		p.MaxRebuildAttempts = defaultMaxRebuilds
	}
	if p.PathLength < minPathLength || p.PathLength > maxPathLength {
		return fmt.Errorf("config: Path: PathLength %d is outside %d-%d", p.PathLength, minPathLength, maxPathLength)
	}
	if p.MaxAge < 0 {
		return errors.New("config: Path: MaxAge is negative")
	}
	if p.MinimumPoolSize < p.PathLength {
		return fmt.Errorf("config: Path: MinimumPoolSize %d is smaller than PathLength %d", p.MinimumPoolSize, p.PathLength)
	}
	return nil
}

// Cache is the node cache section.
type Cache struct {
	// File is the bbolt database path. Empty disables the cache.
	File string
}

// Logging is the logging section.
type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is text or json.
	Format string
}

func (l *Logging) fixup() error {
	l.Level = strings.ToLower(l.Level)
	switch l.Level {
	case "":
		l.Level = defaultLogLevel
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: Logging: Level %q is invalid", l.Level)
	}
	l.Format = strings.ToLower(l.Format)
	switch l.Format {
	case "":
		l.Format = defaultLogFormat
	case "text", "json":
	default:
		return fmt.Errorf("config: Logging: Format %q is invalid", l.Format)
	}
	return nil
}

// Apply configures the global logrus logger.
func (l *Logging) Apply() error {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("config: Logging: %w", err)
	}
	logrus.SetLevel(level)
	if l.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// Metrics is the metrics section.
type Metrics struct {
	// Address to serve Prometheus metrics on, e.g. "127.0.0.1:9100".
	// Empty disables the endpoint.
	Address string
}

// Config is the top level configuration.
type Config struct {
	Network *Network
	Path    *Path
	Cache   *Cache
	Logging *Logging
	Metrics *Metrics
}

// Default returns a configuration with every section at its defaults.
func Default() *Config {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}

// FixupAndValidate applies defaults to missing entries and validates every
// section.
func (c *Config) FixupAndValidate() error {
	if c.Network == nil {
		c.Network = new(Network)
	}
	if c.Path == nil {
		c.Path = new(Path)
	}
	if c.Cache == nil {
		c.Cache = new(Cache)
	}
	if c.Logging == nil {
		c.Logging = new(Logging)
	}
	if c.Metrics == nil {
		c.Metrics = new(Metrics)
	}

	if err := c.Network.fixup(); err != nil {
		return err
	}
	if err := c.Path.fixup(); err != nil {
		return err
	}
	return c.Logging.fixup()
}

// Load parses and validates b as a config file body.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown keys %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the file f.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
