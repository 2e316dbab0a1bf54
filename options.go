package onionrelay

import (
	"net/http"
	"time"

	"github.com/opd-ai/onionrelay/config"
	"github.com/opd-ai/onionrelay/crypto"
	"github.com/opd-ai/onionrelay/path"
	"github.com/opd-ai/onionrelay/snode"
	"github.com/opd-ai/onionrelay/transport"
)

// TransportType selects how the client reaches guard nodes.
type TransportType uint8

const (
	// TransportHTTPS posts onion frames to the guard's HTTPS endpoint.
	TransportHTTPS TransportType = iota
	// TransportNoise uses a Noise NK link over TCP.
	TransportNoise
)

// DefaultMessageTTL is how long storage nodes keep a message.
const DefaultMessageTTL = 14 * 24 * time.Hour

// Options contains the configuration of a Client.
type Options struct {
	// Identity signs outgoing messages. A new one is generated if nil.
	Identity *crypto.Identity

	// Seeds are the seed node URLs used to list storage nodes.
	Seeds []string
	// Directory overrides Seeds.
	Directory snode.Directory

	TransportType TransportType
	// Transport overrides TransportType.
	Transport transport.Transport

	// RequestTimeout bounds a single attempt of an onion request.
	RequestTimeout time.Duration
	// MaxRequestAttempts bounds the paths one request is tried on.
	MaxRequestAttempts int
	// ProbeGuards sends a probe request through each guard candidate
	// before it is pinned.
	ProbeGuards bool

	Path *path.Config
	Pool *snode.PoolConfig

	// CacheFile is the bbolt node cache. Empty disables it.
	CacheFile string

	// TimeProvider stamps messages and ages paths.
	TimeProvider path.TimeProvider
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{
		Seeds:              append([]string(nil), config.DefaultSeeds...),
		TransportType:      TransportHTTPS,
		RequestTimeout:     10 * time.Second,
		MaxRequestAttempts: 3,
		Path:               path.DefaultConfig(),
		Pool:               snode.DefaultPoolConfig(),
		TimeProvider:       path.DefaultTimeProvider{},
	}
}

// OptionsFromConfig converts a loaded configuration file.
func OptionsFromConfig(cfg *config.Config) *Options {
	o := NewOptions()

	o.Seeds = append([]string(nil), cfg.Network.Seeds...)
	o.RequestTimeout = time.Duration(cfg.Network.RequestTimeout) * time.Millisecond
	o.MaxRequestAttempts = cfg.Network.MaxRequestAttempts
	if cfg.Network.Transport == config.TransportNoise {
		o.TransportType = TransportNoise
	}

	o.Path.PathCount = cfg.Path.PathCount
	o.Path.PathLength = cfg.Path.PathLength
	o.Path.GuardCount = cfg.Path.GuardCount
	o.Path.MaxAge = time.Duration(cfg.Path.MaxAge) * time.Second
	o.Path.RebuildBackoff = time.Duration(cfg.Path.RebuildBackoff) * time.Millisecond
	o.Path.MaxRebuildBackoff = time.Duration(cfg.Path.MaxRebuildBackoff) * time.Millisecond
	o.Path.MaxRebuildAttempts = cfg.Path.MaxRebuildAttempts

	o.Pool.MinimumSize = cfg.Path.MinimumPoolSize
	o.Pool.FailureThreshold = cfg.Path.FailureThreshold

	o.CacheFile = cfg.Cache.File
	return o
}

func (o *Options) directory() snode.Directory {
	if o.Directory != nil {
		return o.Directory
	}
	return snode.NewSeedDirectory(o.Seeds, &http.Client{Timeout: o.RequestTimeout})
}

func (o *Options) transport() transport.Transport {
	if o.Transport != nil {
		return o.Transport
	}
	if o.TransportType == TransportNoise {
		return transport.NewNoiseTransport(o.RequestTimeout)
	}
	return transport.NewHTTPTransport(o.RequestTimeout, nil)
}
