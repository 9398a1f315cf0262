package request

import (
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/defaults"
)

// BuildStandaloneRequest builds a request for a single-shard deployment.
func BuildStandaloneRequest(addresses []NodeAddress, opts Options) (*ConnectionRequest, error) {
	return Build(ModeStandalone, addresses, opts)
}

// BuildClusterRequest builds a request for a cluster-mode deployment.
func BuildClusterRequest(addresses []NodeAddress, opts Options) (*ConnectionRequest, error) {
	return Build(ModeCluster, addresses, opts)
}

// Build normalizes and validates opts, then builds the request for mode.
// On error no request is returned.
func Build(mode Mode, addresses []NodeAddress, opts Options) (*ConnectionRequest, error) {
	n := normalize(mode, addresses, opts)
	if err := validate(n); err != nil {
		return nil, err
	}
	if mode == ModeCluster {
		return buildCluster(n), nil
	}
	return buildStandalone(n), nil
}

func buildStandalone(n normalizedOptions) *ConnectionRequest {
	r := buildCommon(n)
	r.clusterModeEnabled = false
	r.databaseId = toUint32(n.databaseId)
	return r
}

func buildCluster(n normalizedOptions) *ConnectionRequest {
	r := buildCommon(n)
	r.clusterModeEnabled = true
	r.periodicChecks = n.periodicChecks
	r.inflightRequestsLimit = toUint32(n.inflightRequestsLimit)
	r.refreshTopologyFromInitialNodes = defaults.ValueOrDefault(n.refreshTopology, false)
	return r
}

func buildCommon(n normalizedOptions) *ConnectionRequest {
	return &ConnectionRequest{
		addresses:          slices.Clone(n.addresses),
		tlsMode:            tlsModeOf(n),
		rootCerts:          cloneBytesList(n.rootCerts),
		authenticationInfo: authenticationInfoOf(n.credentials),
		readFrom:           n.readFrom,
		protocol:           n.protocol,
		requestTimeout:     millis(n.requestTimeout),
		connectionTimeout:  millis(n.connectionTimeout),
		retryStrategy:      retryStrategyOf(n.reconnect),
		clientName:         defaults.ClonePtr(n.clientName),
		clientAz:           defaults.ClonePtr(n.clientAz),
		lazyConnect:        n.lazyConnect,
		pubsub:             canonicalPubSub(n.pubsub),
	}
}

func tlsModeOf(n normalizedOptions) TlsMode {
	switch {
	case !n.useTls:
		return TlsModeNoTls
	case n.useInsecureTls:
		return TlsModeInsecureTls
	default:
		return TlsModeSecureTls
	}
}

func authenticationInfoOf(c *Credentials) *AuthenticationInfo {
	if c == nil {
		return nil
	}
	return &AuthenticationInfo{
		Username: defaults.ClonePtr(c.Username),
		Password: c.Password,
	}
}

func retryStrategyOf(rs *ReconnectStrategy) *RetryStrategy {
	if rs == nil {
		return nil
	}
	return &RetryStrategy{
		NumberOfRetries: uint32(*rs.NumOfRetries), //nolint:gosec // range checked in validate
		Factor:          uint32(*rs.Factor),       //nolint:gosec // range checked in validate
		ExponentBase:    uint32(*rs.ExponentBase), //nolint:gosec // range checked in validate
		JitterPercent:   toUint32(rs.JitterPercent),
	}
}

// canonicalPubSub sorts and de-duplicates names and drops empty channel types.
func canonicalPubSub(in PubSubSubscriptions) PubSubSubscriptions {
	out := make(PubSubSubscriptions, len(in))
	for kind, names := range in {
		if len(names) == 0 {
			continue
		}
		sorted := slices.Clone(names)
		slices.Sort(sorted)
		out[kind] = slices.Compact(sorted)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func millis(v *int) *time.Duration {
	if v == nil {
		return nil
	}
	return lo.ToPtr(time.Duration(*v) * time.Millisecond)
}

func toUint32(v *int) *uint32 {
	if v == nil {
		return nil
	}
	return lo.ToPtr(uint32(*v)) //nolint:gosec // range checked in validate
}
