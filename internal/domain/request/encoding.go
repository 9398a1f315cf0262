package request

import (
	"maps"
	"math"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the ConnectionRequest protobuf message consumed by the engine.
const (
	fieldAddresses                       protowire.Number = 1
	fieldTlsMode                         protowire.Number = 2
	fieldClusterModeEnabled              protowire.Number = 3
	fieldRequestTimeout                  protowire.Number = 4
	fieldReadFrom                        protowire.Number = 5
	fieldConnectionRetryStrategy         protowire.Number = 6
	fieldAuthenticationInfo              protowire.Number = 7
	fieldDatabaseId                      protowire.Number = 8
	fieldProtocol                        protowire.Number = 9
	fieldClientName                      protowire.Number = 10
	fieldPeriodicChecksManualInterval    protowire.Number = 11
	fieldPeriodicChecksDisabled          protowire.Number = 12
	fieldPubSubSubscriptions             protowire.Number = 13
	fieldInflightRequestsLimit           protowire.Number = 14
	fieldClientAz                        protowire.Number = 15
	fieldConnectionTimeout               protowire.Number = 16
	fieldLazyConnect                     protowire.Number = 17
	fieldRefreshTopologyFromInitialNodes protowire.Number = 18
	fieldRootCerts                       protowire.Number = 20
)

// nested message fields
const (
	fieldAddressHost protowire.Number = 1
	fieldAddressPort protowire.Number = 2

	fieldRetryNumberOfRetries protowire.Number = 1
	fieldRetryFactor          protowire.Number = 2
	fieldRetryExponentBase    protowire.Number = 3
	fieldRetryJitterPercent   protowire.Number = 4

	fieldAuthPassword protowire.Number = 1
	fieldAuthUsername protowire.Number = 2

	fieldManualIntervalSeconds protowire.Number = 1

	fieldPubSubByType protowire.Number = 1
	fieldMapKey       protowire.Number = 1
	fieldMapValue     protowire.Number = 2
	fieldChannels     protowire.Number = 1
)

// Encode serializes r. Output is deterministic: fields are written in
// field-number order and pubsub entries by ascending channel type.
func Encode(r *ConnectionRequest) []byte {
	var b []byte

	for _, addr := range r.addresses {
		var m []byte
		m = appendString(m, fieldAddressHost, addr.Host)
		m = appendVarint(m, fieldAddressPort, uint64(addr.Port))
		b = appendMessage(b, fieldAddresses, m)
	}
	b = appendNonZero(b, fieldTlsMode, uint64(r.tlsMode))
	b = appendNonZero(b, fieldClusterModeEnabled, protowire.EncodeBool(r.clusterModeEnabled))
	if r.requestTimeout != nil {
		b = appendVarint(b, fieldRequestTimeout, uint64(*r.requestTimeout/time.Millisecond))
	}
	b = appendNonZero(b, fieldReadFrom, uint64(r.readFrom))
	if s := r.retryStrategy; s != nil {
		var m []byte
		m = appendVarint(m, fieldRetryNumberOfRetries, uint64(s.NumberOfRetries))
		m = appendVarint(m, fieldRetryFactor, uint64(s.Factor))
		m = appendVarint(m, fieldRetryExponentBase, uint64(s.ExponentBase))
		if s.JitterPercent != nil {
			m = appendVarint(m, fieldRetryJitterPercent, uint64(*s.JitterPercent))
		}
		b = appendMessage(b, fieldConnectionRetryStrategy, m)
	}
	if a := r.authenticationInfo; a != nil {
		var m []byte
		m = appendString(m, fieldAuthPassword, a.Password)
		if a.Username != nil {
			m = appendString(m, fieldAuthUsername, *a.Username)
		}
		b = appendMessage(b, fieldAuthenticationInfo, m)
	}
	if r.databaseId != nil {
		b = appendVarint(b, fieldDatabaseId, uint64(*r.databaseId))
	}
	b = appendNonZero(b, fieldProtocol, uint64(r.protocol))
	if r.clientName != nil {
		b = appendString(b, fieldClientName, *r.clientName)
	}
	switch pc := r.periodicChecks.(type) {
	case PeriodicChecksManualInterval:
		m := appendVarint(nil, fieldManualIntervalSeconds, uint64(pc.Interval/time.Second))
		b = appendMessage(b, fieldPeriodicChecksManualInterval, m)
	case PeriodicChecksDisabled:
		b = appendMessage(b, fieldPeriodicChecksDisabled, nil)
	}
	if len(r.pubsub) > 0 {
		b = appendMessage(b, fieldPubSubSubscriptions, encodePubSub(r.pubsub))
	}
	if r.inflightRequestsLimit != nil {
		b = appendVarint(b, fieldInflightRequestsLimit, uint64(*r.inflightRequestsLimit))
	}
	if r.clientAz != nil {
		b = appendString(b, fieldClientAz, *r.clientAz)
	}
	if r.connectionTimeout != nil {
		b = appendVarint(b, fieldConnectionTimeout, uint64(*r.connectionTimeout/time.Millisecond))
	}
	b = appendNonZero(b, fieldLazyConnect, protowire.EncodeBool(r.lazyConnect))
	b = appendNonZero(b, fieldRefreshTopologyFromInitialNodes, protowire.EncodeBool(r.refreshTopologyFromInitialNodes))
	for _, cert := range r.rootCerts {
		b = protowire.AppendTag(b, fieldRootCerts, protowire.BytesType)
		b = protowire.AppendBytes(b, cert)
	}

	return b
}

func encodePubSub(p PubSubSubscriptions) []byte {
	var b []byte
	for _, kind := range slices.Sorted(maps.Keys(p)) {
		var channels []byte
		for _, name := range p[kind] {
			channels = appendString(channels, fieldChannels, name)
		}
		var entry []byte
		entry = appendVarint(entry, fieldMapKey, uint64(kind))
		entry = appendMessage(entry, fieldMapValue, channels)
		b = appendMessage(b, fieldPubSubByType, entry)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendNonZero(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	return appendVarint(b, num, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

// Decode parses bytes produced by Encode. Truncated or corrupt input, strings
// that are not valid UTF-8, values out of range and combinations Build would
// never produce fail with ErrMalformedEncoding. Unknown fields are skipped.
// Zero retry parameters are accepted since Build allows them.
func Decode(data []byte) (*ConnectionRequest, error) {
	r := &ConnectionRequest{}
	var (
		manual   *PeriodicChecksManualInterval
		disabled bool
	)

	err := walkFields(data, "connection_request", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldAddresses:
			m, n, err := readBytes("addresses", typ, b)
			if err != nil {
				return 0, err
			}
			addr, err := decodeAddress(m)
			if err != nil {
				return 0, err
			}
			r.addresses = append(r.addresses, addr)
			return n, nil
		case fieldTlsMode:
			v, n, err := readUint32("tls_mode", typ, b)
			r.tlsMode = TlsMode(v) //nolint:gosec // checked in checkDecoded
			return n, err
		case fieldClusterModeEnabled:
			v, n, err := readVarint("cluster_mode_enabled", typ, b)
			r.clusterModeEnabled = protowire.DecodeBool(v)
			return n, err
		case fieldRequestTimeout:
			v, n, err := readUint32("request_timeout", typ, b)
			r.requestTimeout = lo.ToPtr(time.Duration(v) * time.Millisecond)
			return n, err
		case fieldReadFrom:
			v, n, err := readUint32("read_from", typ, b)
			r.readFrom = ReadFrom(v) //nolint:gosec // checked in checkDecoded
			return n, err
		case fieldConnectionRetryStrategy:
			m, n, err := readBytes("connection_retry_strategy", typ, b)
			if err != nil {
				return 0, err
			}
			r.retryStrategy, err = decodeRetryStrategy(m)
			return n, err
		case fieldAuthenticationInfo:
			m, n, err := readBytes("authentication_info", typ, b)
			if err != nil {
				return 0, err
			}
			r.authenticationInfo, err = decodeAuthenticationInfo(m)
			return n, err
		case fieldDatabaseId:
			v, n, err := readUint32("database_id", typ, b)
			r.databaseId = lo.ToPtr(v)
			return n, err
		case fieldProtocol:
			v, n, err := readUint32("protocol", typ, b)
			r.protocol = ProtocolVersion(v) //nolint:gosec // checked in checkDecoded
			return n, err
		case fieldClientName:
			s, n, err := readString("client_name", typ, b)
			r.clientName = lo.ToPtr(s)
			return n, err
		case fieldPeriodicChecksManualInterval:
			m, n, err := readBytes("periodic_checks_manual_interval", typ, b)
			if err != nil {
				return 0, err
			}
			manual, err = decodeManualInterval(m)
			return n, err
		case fieldPeriodicChecksDisabled:
			_, n, err := readBytes("periodic_checks_disabled", typ, b)
			disabled = true
			return n, err
		case fieldPubSubSubscriptions:
			m, n, err := readBytes("pubsub_subscriptions", typ, b)
			if err != nil {
				return 0, err
			}
			r.pubsub, err = decodePubSub(m)
			return n, err
		case fieldInflightRequestsLimit:
			v, n, err := readUint32("inflight_requests_limit", typ, b)
			r.inflightRequestsLimit = lo.ToPtr(v)
			return n, err
		case fieldClientAz:
			s, n, err := readString("client_az", typ, b)
			r.clientAz = lo.ToPtr(s)
			return n, err
		case fieldConnectionTimeout:
			v, n, err := readUint32("connection_timeout", typ, b)
			r.connectionTimeout = lo.ToPtr(time.Duration(v) * time.Millisecond)
			return n, err
		case fieldLazyConnect:
			v, n, err := readVarint("lazy_connect", typ, b)
			r.lazyConnect = protowire.DecodeBool(v)
			return n, err
		case fieldRefreshTopologyFromInitialNodes:
			v, n, err := readVarint("refresh_topology_from_initial_nodes", typ, b)
			r.refreshTopologyFromInitialNodes = protowire.DecodeBool(v)
			return n, err
		case fieldRootCerts:
			m, n, err := readBytes("root_certs", typ, b)
			r.rootCerts = append(r.rootCerts, slices.Clone(m))
			return n, err
		default:
			return skipField("connection_request", num, typ, b)
		}
	})
	if err != nil {
		return nil, err
	}

	switch {
	case manual != nil && disabled:
		return nil, buildErr(ErrMalformedEncoding, "periodic_checks", "both manual interval and disabled are set")
	case manual != nil:
		r.periodicChecks = *manual
	case disabled:
		r.periodicChecks = PeriodicChecksDisabled{}
	case r.clusterModeEnabled:
		r.periodicChecks = PeriodicChecksEnabledDefault{}
	}

	if err := checkDecoded(r); err != nil {
		return nil, err
	}
	return r, nil
}

// checkDecoded rejects requests that Build could not have produced.
func checkDecoded(r *ConnectionRequest) error {
	if len(r.addresses) == 0 {
		return buildErr(ErrMalformedEncoding, "addresses", "no addresses")
	}
	for i, addr := range r.addresses {
		if addr.Host == "" {
			return buildErr(ErrMalformedEncoding, "addresses", "entry %d has an empty host", i)
		}
	}
	if !r.tlsMode.valid() {
		return buildErr(ErrMalformedEncoding, "tls_mode", "unknown value %d", int32(r.tlsMode))
	}
	if r.tlsMode == TlsModeNoTls && len(r.rootCerts) > 0 {
		return buildErr(ErrMalformedEncoding, "root_certs", "set without tls")
	}
	if !r.readFrom.valid() {
		return buildErr(ErrMalformedEncoding, "read_from", "unknown value %d", int32(r.readFrom))
	}
	if r.readFrom.azAware() && (r.clientAz == nil || *r.clientAz == "") {
		return buildErr(ErrMalformedEncoding, "read_from", "%s without client_az", r.readFrom)
	}
	if r.requestTimeout != nil && *r.requestTimeout == 0 {
		return buildErr(ErrMalformedEncoding, "request_timeout", "zero timeout")
	}
	if r.connectionTimeout != nil && *r.connectionTimeout == 0 {
		return buildErr(ErrMalformedEncoding, "connection_timeout", "zero timeout")
	}
	if !r.protocol.valid() {
		return buildErr(ErrMalformedEncoding, "protocol", "unknown value %d", int32(r.protocol))
	}
	if a := r.authenticationInfo; a != nil {
		if a.Password == "" {
			return buildErr(ErrMalformedEncoding, "authentication_info.password", "empty password")
		}
		if a.Username != nil && *a.Username == "" {
			return buildErr(ErrMalformedEncoding, "authentication_info.username", "empty username")
		}
	}
	if s := r.retryStrategy; s != nil && s.JitterPercent != nil && *s.JitterPercent > maxJitterPercent {
		return buildErr(ErrMalformedEncoding, "connection_retry_strategy", "jitter_percent %d out of range", *s.JitterPercent)
	}
	if r.inflightRequestsLimit != nil && *r.inflightRequestsLimit == 0 {
		return buildErr(ErrMalformedEncoding, "inflight_requests_limit", "zero limit")
	}
	if r.clusterModeEnabled {
		if r.databaseId != nil {
			return buildErr(ErrMalformedEncoding, "database_id", "set in cluster mode")
		}
		return nil
	}
	switch {
	case r.periodicChecks != nil:
		return buildErr(ErrMalformedEncoding, "periodic_checks", "set in standalone mode")
	case r.inflightRequestsLimit != nil:
		return buildErr(ErrMalformedEncoding, "inflight_requests_limit", "set in standalone mode")
	case r.refreshTopologyFromInitialNodes:
		return buildErr(ErrMalformedEncoding, "refresh_topology_from_initial_nodes", "set in standalone mode")
	case len(r.pubsub[PubSubSharded]) > 0:
		return buildErr(ErrMalformedEncoding, "pubsub_subscriptions", "sharded channels in standalone mode")
	}
	return nil
}

func decodeAddress(b []byte) (NodeAddress, error) {
	var addr NodeAddress
	err := walkFields(b, "addresses", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldAddressHost:
			s, n, err := readString("addresses.host", typ, b)
			addr.Host = s
			return n, err
		case fieldAddressPort:
			v, n, err := readVarint("addresses.port", typ, b)
			if err == nil && (v == 0 || v > math.MaxUint16) {
				err = buildErr(ErrMalformedEncoding, "addresses.port", "port %d out of range", v)
			}
			addr.Port = uint16(v) //nolint:gosec // range checked above
			return n, err
		default:
			return skipField("addresses", num, typ, b)
		}
	})
	if err == nil && addr.Port == 0 {
		err = buildErr(ErrMalformedEncoding, "addresses.port", "missing port")
	}
	return addr, err
}

func decodeRetryStrategy(b []byte) (*RetryStrategy, error) {
	s := &RetryStrategy{}
	err := walkFields(b, "connection_retry_strategy", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldRetryNumberOfRetries:
			v, n, err := readUint32("connection_retry_strategy.number_of_retries", typ, b)
			s.NumberOfRetries = v
			return n, err
		case fieldRetryFactor:
			v, n, err := readUint32("connection_retry_strategy.factor", typ, b)
			s.Factor = v
			return n, err
		case fieldRetryExponentBase:
			v, n, err := readUint32("connection_retry_strategy.exponent_base", typ, b)
			s.ExponentBase = v
			return n, err
		case fieldRetryJitterPercent:
			v, n, err := readUint32("connection_retry_strategy.jitter_percent", typ, b)
			s.JitterPercent = lo.ToPtr(v)
			return n, err
		default:
			return skipField("connection_retry_strategy", num, typ, b)
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func decodeAuthenticationInfo(b []byte) (*AuthenticationInfo, error) {
	a := &AuthenticationInfo{}
	err := walkFields(b, "authentication_info", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldAuthPassword:
			s, n, err := readString("authentication_info.password", typ, b)
			a.Password = s
			return n, err
		case fieldAuthUsername:
			s, n, err := readString("authentication_info.username", typ, b)
			a.Username = lo.ToPtr(s)
			return n, err
		default:
			return skipField("authentication_info", num, typ, b)
		}
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func decodeManualInterval(b []byte) (*PeriodicChecksManualInterval, error) {
	var seconds uint32
	err := walkFields(b, "periodic_checks_manual_interval", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldManualIntervalSeconds {
			return skipField("periodic_checks_manual_interval", num, typ, b)
		}
		v, n, err := readUint32("periodic_checks_manual_interval.duration_in_sec", typ, b)
		seconds = v
		return n, err
	})
	if err != nil {
		return nil, err
	}
	if seconds == 0 {
		return nil, buildErr(ErrMalformedEncoding, "periodic_checks_manual_interval", "zero interval")
	}
	return &PeriodicChecksManualInterval{Interval: time.Duration(seconds) * time.Second}, nil
}

func decodePubSub(b []byte) (PubSubSubscriptions, error) {
	out := make(PubSubSubscriptions)
	err := walkFields(b, "pubsub_subscriptions", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldPubSubByType {
			return skipField("pubsub_subscriptions", num, typ, b)
		}
		entry, n, err := readBytes("pubsub_subscriptions.entry", typ, b)
		if err != nil {
			return 0, err
		}
		kind, names, err := decodePubSubEntry(entry)
		if err != nil {
			return 0, err
		}
		out[kind] = append(out[kind], names...)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return canonicalPubSub(out), nil
}

func decodePubSubEntry(b []byte) (PubSubChannelType, []string, error) {
	var (
		kind  PubSubChannelType
		names []string
	)
	err := walkFields(b, "pubsub_subscriptions.entry", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldMapKey:
			v, n, err := readUint32("pubsub_subscriptions.key", typ, b)
			kind = PubSubChannelType(v)
			if err == nil && !kind.valid() {
				err = buildErr(ErrMalformedEncoding, "pubsub_subscriptions.key", "unknown channel type %d", v)
			}
			return n, err
		case fieldMapValue:
			m, n, err := readBytes("pubsub_subscriptions.value", typ, b)
			if err != nil {
				return 0, err
			}
			return n, walkFields(m, "pubsub_subscriptions.value", func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num != fieldChannels {
					return skipField("pubsub_subscriptions.value", num, typ, b)
				}
				s, n, err := readString("pubsub_subscriptions.channels", typ, b)
				if err == nil && s == "" {
					err = buildErr(ErrMalformedEncoding, "pubsub_subscriptions.channels", "empty channel name")
				}
				names = append(names, s)
				return n, err
			})
		default:
			return skipField("pubsub_subscriptions.entry", num, typ, b)
		}
	})
	return kind, names, err
}

// walkFields calls fn for each field of a message; fn returns the number of
// bytes it consumed after the tag.
func walkFields(b []byte, msg string, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return buildErr(ErrMalformedEncoding, msg, "tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func skipField(msg string, num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, buildErr(ErrMalformedEncoding, msg, "field %d: %v", num, protowire.ParseError(n))
	}
	return n, nil
}

func readVarint(field string, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, buildErr(ErrMalformedEncoding, field, "unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, buildErr(ErrMalformedEncoding, field, "%v", protowire.ParseError(n))
	}
	return v, n, nil
}

func readUint32(field string, typ protowire.Type, b []byte) (uint32, int, error) {
	v, n, err := readVarint(field, typ, b)
	if err != nil {
		return 0, 0, err
	}
	if v > math.MaxUint32 {
		return 0, 0, buildErr(ErrMalformedEncoding, field, "value %d overflows uint32", v)
	}
	return uint32(v), n, nil
}

func readBytes(field string, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, buildErr(ErrMalformedEncoding, field, "unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, buildErr(ErrMalformedEncoding, field, "%v", protowire.ParseError(n))
	}
	return v, n, nil
}

func readString(field string, typ protowire.Type, b []byte) (string, int, error) {
	v, n, err := readBytes(field, typ, b)
	if err != nil {
		return "", 0, err
	}
	if !utf8.Valid(v) {
		return "", 0, buildErr(ErrMalformedEncoding, field, "not valid UTF-8")
	}
	return string(v), n, nil
}
