package valkey

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/valkey-io/valkey-go"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/defaults"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
)

// DefaultShardsRefreshInterval is the topology refresh period used when a
// cluster request keeps the default periodic checks.
const DefaultShardsRefreshInterval = 60 * time.Second

var ErrInvalidRootCerts = errors.New("root certificates contain no usable PEM block")

// ClientOption translates a connection request into valkey-go client options.
// cfg may be nil.
func ClientOption(req *request.ConnectionRequest, cfg *Config) (valkey.ClientOption, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	opt := valkey.ClientOption{
		InitAddress: lo.Map(req.Addresses(), func(a request.NodeAddress, _ int) string {
			return a.String()
		}),
		ForceSingleClient: !req.ClusterModeEnabled(),
		AlwaysRESP2:       req.Protocol() == request.ProtocolRESP2,
		DisableCache:      !cfg.ClientSideCache || req.Protocol() == request.ProtocolRESP2,
		BlockingPoolSize:  cfg.BlockingPoolSize,
	}

	if auth, ok := req.AuthenticationInfo(); ok {
		opt.Username = defaults.StringPtrOrDefault(auth.Username, "")
		opt.Password = auth.Password
	}
	if name, ok := req.ClientName(); ok {
		opt.ClientName = name
	}
	if db, ok := req.DatabaseId(); ok {
		opt.SelectDB = int(db)
	}
	if timeout, ok := req.ConnectionTimeout(); ok {
		opt.Dialer.Timeout = timeout
	}
	// A forced single client always talks to the configured node.
	if req.ClusterModeEnabled() && req.ReadFrom() != request.ReadFromPrimary {
		opt.SendToReplicas = func(cmd valkey.Completed) bool {
			return cmd.IsReadOnly()
		}
	}

	tlsCfg, err := tlsConfig(req)
	if err != nil {
		return valkey.ClientOption{}, err
	}
	opt.TLSConfig = tlsCfg

	if req.ClusterModeEnabled() {
		opt.ClusterOption.ShardsRefreshInterval = shardsRefreshInterval(req.PeriodicChecks())
	}
	return opt, nil
}

func tlsConfig(req *request.ConnectionRequest) (*tls.Config, error) {
	switch req.TlsMode() {
	case request.TlsModeNoTls:
		return nil, nil //nolint:nilnil // plaintext
	case request.TlsModeInsecureTls:
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // requested explicitly
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	certs := req.RootCerts()
	if len(certs) == 0 {
		return cfg, nil
	}
	pool := x509.NewCertPool()
	for i, pem := range certs {
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("root cert %d: %w", i, ErrInvalidRootCerts)
		}
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func shardsRefreshInterval(pc request.PeriodicChecks) time.Duration {
	switch v := pc.(type) {
	case request.PeriodicChecksDisabled:
		return 0
	case request.PeriodicChecksManualInterval:
		return v.Interval
	default:
		return DefaultShardsRefreshInterval
	}
}
