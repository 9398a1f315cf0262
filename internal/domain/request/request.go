package request

import (
	"bytes"
	"maps"
	"slices"
	"time"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/defaults"
)

// ConnectionRequest is the resolved, validated configuration a client hands to
// the connection engine. It is immutable: getters return copies.
type ConnectionRequest struct {
	clusterModeEnabled bool
	addresses          []NodeAddress
	tlsMode            TlsMode
	rootCerts          [][]byte
	authenticationInfo *AuthenticationInfo
	readFrom           ReadFrom
	protocol           ProtocolVersion
	requestTimeout     *time.Duration
	connectionTimeout  *time.Duration
	retryStrategy      *RetryStrategy
	databaseId         *uint32
	clientName         *string
	clientAz           *string
	lazyConnect        bool

	periodicChecks                  PeriodicChecks
	inflightRequestsLimit           *uint32
	refreshTopologyFromInitialNodes bool

	pubsub PubSubSubscriptions
}

func (r *ConnectionRequest) ClusterModeEnabled() bool {
	return r.clusterModeEnabled
}

func (r *ConnectionRequest) Mode() Mode {
	if r.clusterModeEnabled {
		return ModeCluster
	}
	return ModeStandalone
}

func (r *ConnectionRequest) Addresses() []NodeAddress {
	return slices.Clone(r.addresses)
}

func (r *ConnectionRequest) TlsMode() TlsMode {
	return r.tlsMode
}

// RootCerts returns the extra PEM bundles trusted for TLS.
func (r *ConnectionRequest) RootCerts() [][]byte {
	return cloneBytesList(r.rootCerts)
}

func (r *ConnectionRequest) AuthenticationInfo() (AuthenticationInfo, bool) {
	if r.authenticationInfo == nil {
		return AuthenticationInfo{}, false
	}
	info := *r.authenticationInfo
	info.Username = defaults.ClonePtr(info.Username)
	return info, true
}

func (r *ConnectionRequest) ReadFrom() ReadFrom {
	return r.readFrom
}

func (r *ConnectionRequest) Protocol() ProtocolVersion {
	return r.protocol
}

func (r *ConnectionRequest) RequestTimeout() (time.Duration, bool) {
	return get(r.requestTimeout)
}

func (r *ConnectionRequest) ConnectionTimeout() (time.Duration, bool) {
	return get(r.connectionTimeout)
}

func (r *ConnectionRequest) ConnectionRetryStrategy() (RetryStrategy, bool) {
	if r.retryStrategy == nil {
		return RetryStrategy{}, false
	}
	s := *r.retryStrategy
	s.JitterPercent = defaults.ClonePtr(s.JitterPercent)
	return s, true
}

func (r *ConnectionRequest) DatabaseId() (uint32, bool) {
	return get(r.databaseId)
}

func (r *ConnectionRequest) ClientName() (string, bool) {
	return get(r.clientName)
}

func (r *ConnectionRequest) ClientAz() (string, bool) {
	return get(r.clientAz)
}

func (r *ConnectionRequest) LazyConnect() bool {
	return r.lazyConnect
}

// PeriodicChecks is nil for standalone requests.
func (r *ConnectionRequest) PeriodicChecks() PeriodicChecks {
	return r.periodicChecks
}

func (r *ConnectionRequest) HasPeriodicChecksDisabled() bool {
	_, ok := r.periodicChecks.(PeriodicChecksDisabled)
	return ok
}

func (r *ConnectionRequest) HasPeriodicChecksManualInterval() bool {
	_, ok := r.periodicChecks.(PeriodicChecksManualInterval)
	return ok
}

func (r *ConnectionRequest) InflightRequestsLimit() (uint32, bool) {
	return get(r.inflightRequestsLimit)
}

func (r *ConnectionRequest) RefreshTopologyFromInitialNodes() bool {
	return r.refreshTopologyFromInitialNodes
}

// PubSubSubscriptions returns names per channel type, sorted and de-duplicated.
func (r *ConnectionRequest) PubSubSubscriptions() PubSubSubscriptions {
	return clonePubSub(r.pubsub)
}

// Equal compares every field; it backs the encode/decode round trip.
func (r *ConnectionRequest) Equal(o *ConnectionRequest) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.clusterModeEnabled == o.clusterModeEnabled &&
		slices.Equal(r.addresses, o.addresses) &&
		r.tlsMode == o.tlsMode &&
		slices.EqualFunc(r.rootCerts, o.rootCerts, bytes.Equal) &&
		equalBy(r.authenticationInfo, o.authenticationInfo, AuthenticationInfo.equal) &&
		r.readFrom == o.readFrom &&
		r.protocol == o.protocol &&
		ptrEqual(r.requestTimeout, o.requestTimeout) &&
		ptrEqual(r.connectionTimeout, o.connectionTimeout) &&
		equalBy(r.retryStrategy, o.retryStrategy, RetryStrategy.equal) &&
		ptrEqual(r.databaseId, o.databaseId) &&
		ptrEqual(r.clientName, o.clientName) &&
		ptrEqual(r.clientAz, o.clientAz) &&
		r.lazyConnect == o.lazyConnect &&
		r.periodicChecks == o.periodicChecks &&
		ptrEqual(r.inflightRequestsLimit, o.inflightRequestsLimit) &&
		r.refreshTopologyFromInitialNodes == o.refreshTopologyFromInitialNodes &&
		maps.EqualFunc(r.pubsub, o.pubsub, slices.Equal)
}

func get[T any](v *T) (T, bool) {
	if v == nil {
		var zero T
		return zero, false
	}
	return *v, true
}

func equalBy[T any](a, b *T, eq func(T, T) bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return eq(*a, *b)
}

func cloneBytesList(in [][]byte) [][]byte {
	if len(in) == 0 {
		return nil
	}
	out := make([][]byte, len(in))
	for i, b := range in {
		out[i] = slices.Clone(b)
	}
	return out
}
