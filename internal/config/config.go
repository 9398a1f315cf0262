package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"sigs.k8s.io/yaml"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/infrastructure/valkey"
)

const (
	EnvPrefix = "GLIDE_"

	clusterKey   = "cluster"
	connectorKey = "connector"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is a connection setup: the request inputs plus connector settings.
//
// File layout (YAML or JSON):
//
//	cluster: true
//	connector: {tracing: true}
//	addresses: ["node-1:7000", "node-2:7001"]
//	read_from: prefer_replica
//	...any other request option
type Config struct {
	Mode      request.Mode
	Addresses []request.NodeAddress
	Options   request.Options
	Connector valkey.Config
}

// envOverrides are applied on top of the file. Unset variables leave the
// file value untouched.
type envOverrides struct {
	Addresses        []string `env:"ADDRESSES"`
	Cluster          *bool    `env:"CLUSTER"`
	UseTls           *bool    `env:"USE_TLS"`
	Username         *string  `env:"USERNAME"`
	Password         *string  `env:"PASSWORD"`
	ClientName       *string  `env:"CLIENT_NAME"`
	RequestTimeoutMs *int     `env:"REQUEST_TIMEOUT_MS"`
	DatabaseId       *int     `env:"DATABASE_ID"`
	LazyConnect      *bool    `env:"LAZY_CONNECT"`
}

// Load reads the options file at path, if any, and applies GLIDE_*
// environment overrides.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	raw := map[string]any{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	cfg := &Config{Mode: request.ModeStandalone}
	if v, ok := raw[clusterKey]; ok {
		delete(raw, clusterKey)
		var cluster bool
		if err := mapstructure.WeakDecode(v, &cluster); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, clusterKey, err)
		}
		if cluster {
			cfg.Mode = request.ModeCluster
		}
	}
	if v, ok := raw[connectorKey]; ok {
		delete(raw, connectorKey)
		if err := mapstructure.WeakDecode(v, &cfg.Connector); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, connectorKey, err)
		}
	}

	addresses, opts, err := request.FromMap(raw)
	if err != nil {
		return nil, err
	}
	cfg.Addresses = addresses
	cfg.Options = opts

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	over, err := env.ParseAsWithOptions[envOverrides](env.Options{Prefix: EnvPrefix})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := env.Parse(&c.Connector); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if len(over.Addresses) > 0 {
		addrs, _, err := request.FromMap(map[string]any{"addresses": lo.ToAnySlice(over.Addresses)})
		if err != nil {
			return err
		}
		c.Addresses = addrs
	}
	if over.Cluster != nil {
		c.Mode = request.ModeStandalone
		if *over.Cluster {
			c.Mode = request.ModeCluster
		}
	}

	o := &c.Options
	if over.UseTls != nil {
		o.UseTls = over.UseTls
	}
	if over.Username != nil || over.Password != nil {
		if o.Credentials == nil {
			o.Credentials = &request.Credentials{}
		}
		if over.Username != nil {
			o.Credentials.Username = over.Username
		}
		if over.Password != nil {
			o.Credentials.Password = *over.Password
		}
	}
	if over.ClientName != nil {
		o.ClientName = over.ClientName
	}
	if over.RequestTimeoutMs != nil {
		o.RequestTimeout = over.RequestTimeoutMs
	}
	if over.DatabaseId != nil {
		o.DatabaseId = over.DatabaseId
	}
	if over.LazyConnect != nil {
		o.LazyConnect = over.LazyConnect
	}
	return nil
}

// Build validates the collected inputs and returns the connection request.
func (c *Config) Build() (*request.ConnectionRequest, error) {
	return request.Build(c.Mode, c.Addresses, c.Options)
}
