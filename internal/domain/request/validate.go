package request

import (
	"maps"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const maxJitterPercent = 100

// validate fails fast: checks run in a fixed order and the first violation is
// returned as a *BuildError.
func validate(n normalizedOptions) error {
	checks := []func(normalizedOptions) error{
		validateAddresses,
		validateTls,
		validateCredentials,
		validateReadFrom,
		validateTimeouts,
		validateReconnectStrategy,
		validateDatabaseId,
		validatePeriodicChecks,
		validateInflightLimit,
		validatePubSub,
		validateModeOptions,
	}
	for _, check := range checks {
		if err := check(n); err != nil {
			return err
		}
	}
	return nil
}

func validateAddresses(n normalizedOptions) error {
	if len(n.addresses) == 0 {
		return buildErr(ErrInvalidAddressList, "addresses", "at least one address is required")
	}
	for i, addr := range n.addresses {
		if strings.TrimSpace(addr.Host) == "" {
			return buildErr(ErrInvalidAddressList, "addresses", "entry %d has an empty host", i)
		}
		if !utf8.ValidString(addr.Host) {
			return buildErr(ErrInvalidAddressList, "addresses", "entry %d host is not valid UTF-8", i)
		}
		if addr.Port == 0 {
			return buildErr(ErrInvalidAddressList, "addresses", "entry %d (%s) has port 0", i, addr.Host)
		}
	}
	return nil
}

func validateTls(n normalizedOptions) error {
	if n.useTls {
		return nil
	}
	if n.useInsecureTls {
		return buildErr(ErrInvalidTls, "advanced_config.tls_config.use_insecure_tls", "requires use_tls")
	}
	if len(n.rootCerts) > 0 {
		return buildErr(ErrInvalidTls, "advanced_config.tls_config.root_certs", "requires use_tls")
	}
	return nil
}

func validateCredentials(n normalizedOptions) error {
	if n.credentials == nil {
		return nil
	}
	if n.credentials.Password == "" {
		return buildErr(ErrInvalidCredentials, "credentials.password", "must not be empty")
	}
	if !utf8.ValidString(n.credentials.Password) {
		return buildErr(ErrInvalidCredentials, "credentials.password", "not valid UTF-8")
	}
	if u := n.credentials.Username; u != nil {
		if *u == "" {
			return buildErr(ErrInvalidCredentials, "credentials.username", "must not be empty when set")
		}
		if !utf8.ValidString(*u) {
			return buildErr(ErrInvalidCredentials, "credentials.username", "not valid UTF-8")
		}
	}
	return nil
}

func validateReadFrom(n normalizedOptions) error {
	if !n.readFrom.valid() {
		return buildErr(ErrInvalidReadFrom, "read_from", "unknown strategy %d", int32(n.readFrom))
	}
	if n.clientAz != nil && !utf8.ValidString(*n.clientAz) {
		return buildErr(ErrInvalidReadFrom, "client_az", "not valid UTF-8")
	}
	if n.readFrom.azAware() && (n.clientAz == nil || *n.clientAz == "") {
		return buildErr(ErrInvalidReadFrom, "read_from", "%s requires client_az", n.readFrom)
	}
	return nil
}

func validateTimeouts(n normalizedOptions) error {
	if err := validateMillis("request_timeout", n.requestTimeout); err != nil {
		return err
	}
	return validateMillis("advanced_config.connection_timeout", n.connectionTimeout)
}

func validateMillis(field string, v *int) error {
	if v == nil {
		return nil
	}
	if *v <= 0 {
		return buildErr(ErrInvalidTimeout, field, "must be positive, got %d", *v)
	}
	if int64(*v) > math.MaxUint32 {
		return buildErr(ErrInvalidTimeout, field, "%d ms exceeds %d", *v, uint32(math.MaxUint32))
	}
	return nil
}

func validateReconnectStrategy(n normalizedOptions) error {
	rs := n.reconnect
	if rs == nil {
		return nil
	}
	required := []struct {
		field string
		value *int
	}{
		{"reconnect_strategy.num_of_retries", rs.NumOfRetries},
		{"reconnect_strategy.factor", rs.Factor},
		{"reconnect_strategy.exponent_base", rs.ExponentBase},
	}
	for _, r := range required {
		if r.value == nil {
			return buildErr(ErrInvalidRetryStrategy, r.field, "is required")
		}
		if *r.value < 0 {
			return buildErr(ErrInvalidRetryStrategy, r.field, "must be non-negative, got %d", *r.value)
		}
		if int64(*r.value) > math.MaxUint32 {
			return buildErr(ErrInvalidRetryStrategy, r.field, "%d exceeds %d", *r.value, uint32(math.MaxUint32))
		}
	}
	if j := rs.JitterPercent; j != nil && (*j < 0 || *j > maxJitterPercent) {
		return buildErr(ErrInvalidRetryStrategy, "reconnect_strategy.jitter_percent", "must be in [0,100], got %d", *j)
	}
	return nil
}

func validateDatabaseId(n normalizedOptions) error {
	if n.databaseId == nil {
		return nil
	}
	if n.mode == ModeCluster {
		return buildErr(ErrInvalidDatabaseId, "database_id", "not supported in cluster mode")
	}
	if *n.databaseId < 0 {
		return buildErr(ErrInvalidDatabaseId, "database_id", "must be non-negative, got %d", *n.databaseId)
	}
	if int64(*n.databaseId) > math.MaxUint32 {
		return buildErr(ErrInvalidDatabaseId, "database_id", "%d exceeds %d", *n.databaseId, uint32(math.MaxUint32))
	}
	return nil
}

func validatePeriodicChecks(n normalizedOptions) error {
	if n.periodicChecks == nil {
		return nil
	}
	if n.mode == ModeStandalone {
		return buildErr(ErrInvalidPeriodicChecksConfig, "periodic_checks", "only supported in cluster mode")
	}
	switch pc := n.periodicChecks.(type) {
	case PeriodicChecksEnabledDefault, PeriodicChecksDisabled:
		return nil
	case PeriodicChecksManualInterval:
		if pc.Interval <= 0 {
			return buildErr(ErrInvalidPeriodicChecksConfig, "periodic_checks", "manual interval must be positive, got %s", pc.Interval)
		}
		if pc.Interval%time.Second != 0 {
			return buildErr(ErrInvalidPeriodicChecksConfig, "periodic_checks", "manual interval %s is not a whole number of seconds", pc.Interval)
		}
		if pc.Interval/time.Second > math.MaxUint32 {
			return buildErr(ErrInvalidPeriodicChecksConfig, "periodic_checks", "manual interval %s is too large", pc.Interval)
		}
		return nil
	default:
		return buildErr(ErrInvalidPeriodicChecksConfig, "periodic_checks", "unknown variant %T", pc)
	}
}

func validateInflightLimit(n normalizedOptions) error {
	v := n.inflightRequestsLimit
	if v == nil {
		return nil
	}
	if n.mode == ModeStandalone {
		return buildErr(ErrInvalidInflightLimit, "inflight_requests_limit", "only supported in cluster mode")
	}
	if *v <= 0 {
		return buildErr(ErrInvalidInflightLimit, "inflight_requests_limit", "must be positive, got %d", *v)
	}
	if int64(*v) > math.MaxUint32 {
		return buildErr(ErrInvalidInflightLimit, "inflight_requests_limit", "%d exceeds %d", *v, uint32(math.MaxUint32))
	}
	return nil
}

func validatePubSub(n normalizedOptions) error {
	for _, kind := range slices.Sorted(maps.Keys(n.pubsub)) {
		names := n.pubsub[kind]
		if !kind.valid() {
			return buildErr(ErrInvalidPubSub, "pubsub_subscriptions", "unknown channel type %d", uint32(kind))
		}
		if kind == PubSubSharded && n.mode == ModeStandalone {
			return buildErr(ErrInvalidPubSub, "pubsub_subscriptions", "sharded channels require cluster mode")
		}
		for _, name := range names {
			if name == "" {
				return buildErr(ErrInvalidPubSub, "pubsub_subscriptions", "empty %s channel name", kind)
			}
			if !utf8.ValidString(name) {
				return buildErr(ErrInvalidPubSub, "pubsub_subscriptions", "%s channel name is not valid UTF-8", kind)
			}
		}
	}
	return nil
}

func validateModeOptions(n normalizedOptions) error {
	if !n.protocol.valid() {
		return buildErr(ErrInvalidOptions, "protocol", "unknown protocol version %d", int32(n.protocol))
	}
	if n.clientName != nil && !utf8.ValidString(*n.clientName) {
		return buildErr(ErrInvalidOptions, "client_name", "not valid UTF-8")
	}
	if n.refreshTopology != nil && n.mode == ModeStandalone {
		return buildErr(ErrInvalidOptions, "advanced_config.refresh_topology_from_initial_nodes", "only supported in cluster mode")
	}
	return nil
}
