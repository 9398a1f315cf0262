package request

// Options is the caller-facing option set shared by both construction paths.
// A nil field means "not specified"; the zero value of a pointed-to field is
// an explicit request for that value.
type Options struct {
	UseTls            *bool              `mapstructure:"use_tls"`
	Credentials       *Credentials       `mapstructure:"credentials"`
	ReadFrom          *ReadFrom          `mapstructure:"read_from"`
	RequestTimeout    *int               `mapstructure:"request_timeout"` // milliseconds
	ReconnectStrategy *ReconnectStrategy `mapstructure:"reconnect_strategy"`
	DatabaseId        *int               `mapstructure:"database_id"` // standalone only
	ClientName        *string            `mapstructure:"client_name"`
	ClientAz          *string            `mapstructure:"client_az"`
	AdvancedConfig    *AdvancedConfig    `mapstructure:"advanced_config"`
	LazyConnect       *bool              `mapstructure:"lazy_connect"`
	Protocol          *ProtocolVersion   `mapstructure:"protocol"`

	// cluster only
	PeriodicChecks        PeriodicChecks `mapstructure:"periodic_checks"`
	InflightRequestsLimit *int           `mapstructure:"inflight_requests_limit"`

	PubSubSubscriptions PubSubSubscriptions `mapstructure:"pubsub_subscriptions"`
}

type Credentials struct {
	Username *string `mapstructure:"username"`
	Password string  `mapstructure:"password"`
}

// ReconnectStrategy fields are signed so that negative input can be rejected
// instead of silently wrapping.
type ReconnectStrategy struct {
	NumOfRetries  *int `mapstructure:"num_of_retries"`
	Factor        *int `mapstructure:"factor"`
	ExponentBase  *int `mapstructure:"exponent_base"`
	JitterPercent *int `mapstructure:"jitter_percent"`
}

type AdvancedConfig struct {
	ConnectionTimeout *int       `mapstructure:"connection_timeout"` // milliseconds
	TlsConfig         *TlsConfig `mapstructure:"tls_config"`

	// cluster only
	RefreshTopologyFromInitialNodes *bool `mapstructure:"refresh_topology_from_initial_nodes"`
}

type TlsConfig struct {
	UseInsecureTls *bool    `mapstructure:"use_insecure_tls"`
	RootCerts      [][]byte `mapstructure:"root_certs"` // PEM bundles
}
