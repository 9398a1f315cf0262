package request

import (
	"slices"

	"github.com/samber/lo"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/defaults"
)

// normalizedOptions is Options with every default resolved. Pointer fields stay
// nil when the caller left them unset and the engine default applies.
type normalizedOptions struct {
	mode      Mode
	addresses []NodeAddress

	useTls         bool
	useInsecureTls bool
	rootCerts      [][]byte

	credentials *Credentials
	readFrom    ReadFrom
	protocol    ProtocolVersion
	lazyConnect bool

	requestTimeout    *int
	connectionTimeout *int
	reconnect         *ReconnectStrategy
	databaseId        *int
	clientName        *string
	clientAz          *string

	periodicChecks        PeriodicChecks
	inflightRequestsLimit *int
	refreshTopology       *bool

	pubsub PubSubSubscriptions
}

func defaultReadFrom(mode Mode) ReadFrom {
	if mode == ModeCluster {
		return ReadFromPreferReplica
	}
	return ReadFromPrimary
}

// normalize resolves defaults without judging the values; see validate.
func normalize(mode Mode, addresses []NodeAddress, opts Options) normalizedOptions {
	n := normalizedOptions{
		mode:                  mode,
		addresses:             slices.Clone(addresses),
		useTls:                defaults.ValueOrDefault(opts.UseTls, false),
		readFrom:              defaults.ValueOrDefault(opts.ReadFrom, defaultReadFrom(mode)),
		protocol:              defaults.ValueOrDefault(opts.Protocol, ProtocolRESP3),
		lazyConnect:           defaults.ValueOrDefault(opts.LazyConnect, false),
		requestTimeout:        defaults.ClonePtr(opts.RequestTimeout),
		databaseId:            defaults.ClonePtr(opts.DatabaseId),
		clientName:            defaults.ClonePtr(opts.ClientName),
		clientAz:              defaults.ClonePtr(opts.ClientAz),
		periodicChecks:        opts.PeriodicChecks,
		inflightRequestsLimit: defaults.ClonePtr(opts.InflightRequestsLimit),
		pubsub:                clonePubSub(opts.PubSubSubscriptions),
	}

	if opts.Credentials != nil {
		n.credentials = &Credentials{
			Username: defaults.ClonePtr(opts.Credentials.Username),
			Password: opts.Credentials.Password,
		}
	}

	if rs := opts.ReconnectStrategy; rs != nil {
		n.reconnect = &ReconnectStrategy{
			NumOfRetries:  defaults.ClonePtr(rs.NumOfRetries),
			Factor:        defaults.ClonePtr(rs.Factor),
			ExponentBase:  defaults.ClonePtr(rs.ExponentBase),
			JitterPercent: defaults.ClonePtr(rs.JitterPercent),
		}
	}

	if adv := opts.AdvancedConfig; adv != nil {
		n.connectionTimeout = defaults.ClonePtr(adv.ConnectionTimeout)
		n.refreshTopology = defaults.ClonePtr(adv.RefreshTopologyFromInitialNodes)
		if tlsCfg := adv.TlsConfig; tlsCfg != nil {
			n.useInsecureTls = defaults.ValueOrDefault(tlsCfg.UseInsecureTls, false)
			n.rootCerts = lo.Map(tlsCfg.RootCerts, func(c []byte, _ int) []byte {
				return slices.Clone(c)
			})
		}
	}

	if mode == ModeCluster && n.periodicChecks == nil {
		n.periodicChecks = PeriodicChecksEnabledDefault{}
	}

	return n
}

func clonePubSub(in PubSubSubscriptions) PubSubSubscriptions {
	if len(in) == 0 {
		return nil
	}
	out := make(PubSubSubscriptions, len(in))
	for kind, names := range in {
		out[kind] = slices.Clone(names)
	}
	return out
}
