package request

import (
	"math"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/require"
)

func localhost() []NodeAddress {
	return []NodeAddress{{Host: "localhost", Port: 8080}}
}

func TestBuildStandaloneDefaults(t *testing.T) {
	req, err := BuildStandaloneRequest(localhost(), Options{})
	require.NoError(t, err)

	require.False(t, req.ClusterModeEnabled())
	require.Equal(t, ModeStandalone, req.Mode())
	require.Equal(t, []NodeAddress{{Host: "localhost", Port: 8080}}, req.Addresses())
	require.Equal(t, TlsModeNoTls, req.TlsMode())
	require.Equal(t, ReadFromPrimary, req.ReadFrom())
	require.Equal(t, ProtocolRESP3, req.Protocol())
	require.False(t, req.LazyConnect())
	require.Nil(t, req.PeriodicChecks())

	_, ok := req.AuthenticationInfo()
	require.False(t, ok)
	_, ok = req.RequestTimeout()
	require.False(t, ok)
	_, ok = req.ConnectionRetryStrategy()
	require.False(t, ok)
	_, ok = req.DatabaseId()
	require.False(t, ok)
	_, ok = req.InflightRequestsLimit()
	require.False(t, ok)
}

func TestBuildClusterDefaults(t *testing.T) {
	req, err := BuildClusterRequest(localhost(), Options{})
	require.NoError(t, err)

	require.True(t, req.ClusterModeEnabled())
	require.Equal(t, ReadFromPreferReplica, req.ReadFrom())
	require.Equal(t, PeriodicChecksEnabledDefault{}, req.PeriodicChecks())
	require.False(t, req.HasPeriodicChecksDisabled())
	require.False(t, req.HasPeriodicChecksManualInterval())
	_, ok := req.DatabaseId()
	require.False(t, ok)
}

func TestAddressOrderPreserved(t *testing.T) {
	addrs := []NodeAddress{{Host: "b", Port: 2}, {Host: "a", Port: 1}, {Host: "c", Port: 3}, {Host: "a", Port: 1}}

	for _, mode := range []Mode{ModeStandalone, ModeCluster} {
		req, err := Build(mode, addrs, Options{})
		require.NoError(t, err)
		require.Equal(t, addrs, req.Addresses(), mode.String())
	}

	req, err := BuildStandaloneRequest([]NodeAddress{{Host: "a", Port: 1}, {Host: "b", Port: 2}}, Options{})
	require.NoError(t, err)
	require.Equal(t, []NodeAddress{{Host: "a", Port: 1}, {Host: "b", Port: 2}}, req.Addresses())
}

func TestRequestIsolatedFromCaller(t *testing.T) {
	addrs := localhost()
	user := "alice"
	opts := Options{
		Credentials: &Credentials{Username: &user, Password: "secret"},
		ClientName:  lo.ToPtr("app"),
	}

	req, err := BuildStandaloneRequest(addrs, opts)
	require.NoError(t, err)

	addrs[0].Host = "mutated"
	user = "mallory"
	*opts.ClientName = "other"

	got := req.Addresses()
	require.Equal(t, "localhost", got[0].Host)
	got[0].Host = "mutated"
	require.Equal(t, "localhost", req.Addresses()[0].Host)

	auth, ok := req.AuthenticationInfo()
	require.True(t, ok)
	require.Equal(t, "alice", *auth.Username)
	name, _ := req.ClientName()
	require.Equal(t, "app", name)
}

func TestTlsDerivation(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		expected TlsMode
	}{
		{
			name:     "tls off",
			opts:     Options{UseTls: lo.ToPtr(false)},
			expected: TlsModeNoTls,
		},
		{
			name:     "tls on",
			opts:     Options{UseTls: lo.ToPtr(true)},
			expected: TlsModeSecureTls,
		},
		{
			name: "tls on, insecure false",
			opts: Options{
				UseTls:         lo.ToPtr(true),
				AdvancedConfig: &AdvancedConfig{TlsConfig: &TlsConfig{UseInsecureTls: lo.ToPtr(false)}},
			},
			expected: TlsModeSecureTls,
		},
		{
			name: "tls on, insecure",
			opts: Options{
				UseTls:         lo.ToPtr(true),
				AdvancedConfig: &AdvancedConfig{TlsConfig: &TlsConfig{UseInsecureTls: lo.ToPtr(true)}},
			},
			expected: TlsModeInsecureTls,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, mode := range []Mode{ModeStandalone, ModeCluster} {
				req, err := Build(mode, localhost(), tt.opts)
				require.NoError(t, err)
				require.Equal(t, tt.expected, req.TlsMode())
			}
		})
	}
}

func TestInsecureTlsWithoutTlsRejected(t *testing.T) {
	_, err := BuildStandaloneRequest(localhost(), Options{
		AdvancedConfig: &AdvancedConfig{TlsConfig: &TlsConfig{UseInsecureTls: lo.ToPtr(true)}},
	})
	require.ErrorIs(t, err, ErrInvalidTls)

	_, err = BuildStandaloneRequest(localhost(), Options{
		AdvancedConfig: &AdvancedConfig{TlsConfig: &TlsConfig{RootCerts: [][]byte{[]byte("pem")}}},
	})
	require.ErrorIs(t, err, ErrInvalidTls)
}

func TestCredentialsRoundTrip(t *testing.T) {
	pairs := []Credentials{
		{Username: lo.ToPtr("user"), Password: "pass"},
		{Username: nil, Password: "only-password"},
		{Username: lo.ToPtr("ünïcode"), Password: "p@ss:w0rd with spaces"},
	}

	for _, creds := range pairs {
		for _, mode := range []Mode{ModeStandalone, ModeCluster} {
			req, err := Build(mode, localhost(), Options{Credentials: &creds})
			require.NoError(t, err)

			auth, ok := req.AuthenticationInfo()
			require.True(t, ok)
			require.Equal(t, creds.Password, auth.Password)
			require.Equal(t, creds.Username, auth.Username)
		}
	}
}

func TestReadFromExplicit(t *testing.T) {
	req, err := BuildClusterRequest(localhost(), Options{ReadFrom: lo.ToPtr(ReadFromPrimary)})
	require.NoError(t, err)
	require.Equal(t, ReadFromPrimary, req.ReadFrom())

	req, err = BuildStandaloneRequest(localhost(), Options{
		ReadFrom: lo.ToPtr(ReadFromAZAffinity),
		ClientAz: lo.ToPtr("us-east-1a"),
	})
	require.NoError(t, err)
	require.Equal(t, ReadFromAZAffinity, req.ReadFrom())
	az, ok := req.ClientAz()
	require.True(t, ok)
	require.Equal(t, "us-east-1a", az)
}

func TestRetryStrategyRoundTrip(t *testing.T) {
	req, err := BuildStandaloneRequest(localhost(), Options{
		ReconnectStrategy: &ReconnectStrategy{
			NumOfRetries:  lo.ToPtr(2),
			Factor:        lo.ToPtr(3),
			ExponentBase:  lo.ToPtr(7),
			JitterPercent: lo.ToPtr(15),
		},
	})
	require.NoError(t, err)

	rs, ok := req.ConnectionRetryStrategy()
	require.True(t, ok)
	require.Equal(t, RetryStrategy{
		NumberOfRetries: 2,
		Factor:          3,
		ExponentBase:    7,
		JitterPercent:   lo.ToPtr(uint32(15)),
	}, rs)
}

func TestPeriodicChecksVariants(t *testing.T) {
	req, err := BuildClusterRequest(localhost(), Options{PeriodicChecks: PeriodicChecksDisabled{}})
	require.NoError(t, err)
	require.True(t, req.HasPeriodicChecksDisabled())
	require.False(t, req.HasPeriodicChecksManualInterval())

	req, err = BuildClusterRequest(localhost(), Options{
		PeriodicChecks: PeriodicChecksManualInterval{Interval: 30 * time.Second},
	})
	require.NoError(t, err)
	require.True(t, req.HasPeriodicChecksManualInterval())
	require.False(t, req.HasPeriodicChecksDisabled())
	require.Equal(t, PeriodicChecksManualInterval{Interval: 30 * time.Second}, req.PeriodicChecks())

	req, err = BuildClusterRequest(localhost(), Options{PeriodicChecks: PeriodicChecksEnabledDefault{}})
	require.NoError(t, err)
	require.Equal(t, PeriodicChecksEnabledDefault{}, req.PeriodicChecks())
}

func TestOptionalFieldsMapped(t *testing.T) {
	req, err := BuildStandaloneRequest(localhost(), Options{
		RequestTimeout: lo.ToPtr(250),
		DatabaseId:     lo.ToPtr(0),
		ClientName:     lo.ToPtr("worker-1"),
		LazyConnect:    lo.ToPtr(true),
		Protocol:       lo.ToPtr(ProtocolRESP2),
		AdvancedConfig: &AdvancedConfig{ConnectionTimeout: lo.ToPtr(1500)},
		PubSubSubscriptions: PubSubSubscriptions{
			PubSubExact:   {"news", "alerts", "news"},
			PubSubPattern: {"events.*"},
		},
	})
	require.NoError(t, err)

	timeout, ok := req.RequestTimeout()
	require.True(t, ok)
	require.Equal(t, 250*time.Millisecond, timeout)

	db, ok := req.DatabaseId()
	require.True(t, ok)
	require.Zero(t, db)

	connTimeout, ok := req.ConnectionTimeout()
	require.True(t, ok)
	require.Equal(t, 1500*time.Millisecond, connTimeout)

	require.True(t, req.LazyConnect())
	require.Equal(t, ProtocolRESP2, req.Protocol())
	require.Equal(t, PubSubSubscriptions{
		PubSubExact:   {"alerts", "news"},
		PubSubPattern: {"events.*"},
	}, req.PubSubSubscriptions())
}

func TestClusterOnlyFieldsMapped(t *testing.T) {
	req, err := BuildClusterRequest(localhost(), Options{
		InflightRequestsLimit: lo.ToPtr(500),
		AdvancedConfig:        &AdvancedConfig{RefreshTopologyFromInitialNodes: lo.ToPtr(true)},
		PubSubSubscriptions:   PubSubSubscriptions{PubSubSharded: {"orders"}},
	})
	require.NoError(t, err)

	limit, ok := req.InflightRequestsLimit()
	require.True(t, ok)
	require.Equal(t, uint32(500), limit)
	require.True(t, req.RefreshTopologyFromInitialNodes())
	require.Equal(t, []string{"orders"}, req.PubSubSubscriptions()[PubSubSharded])
}

func TestValidationFailures(t *testing.T) {
	const overUint32 = math.MaxUint32 + 1

	tests := []struct {
		name      string
		mode      Mode
		addresses []NodeAddress
		opts      Options
		expected  error
	}{
		{name: "no addresses", mode: ModeStandalone, addresses: nil, expected: ErrInvalidAddressList},
		{name: "empty host", mode: ModeCluster, addresses: []NodeAddress{{Host: " ", Port: 1}}, expected: ErrInvalidAddressList},
		{name: "port zero", mode: ModeStandalone, addresses: []NodeAddress{{Host: "a", Port: 0}}, expected: ErrInvalidAddressList},
		{name: "host not utf8", mode: ModeStandalone, addresses: []NodeAddress{{Host: "\xff\xfe", Port: 1}}, expected: ErrInvalidAddressList},
		{
			name:     "password not utf8",
			mode:     ModeStandalone,
			opts:     Options{Credentials: &Credentials{Password: "\xc3"}},
			expected: ErrInvalidCredentials,
		},
		{
			name:     "username not utf8",
			mode:     ModeCluster,
			opts:     Options{Credentials: &Credentials{Username: lo.ToPtr("\xc3"), Password: "p"}},
			expected: ErrInvalidCredentials,
		},
		{name: "client az not utf8", mode: ModeCluster, opts: Options{ClientAz: lo.ToPtr("az-\xff")}, expected: ErrInvalidReadFrom},
		{name: "client name not utf8", mode: ModeStandalone, opts: Options{ClientName: lo.ToPtr("\xc3")}, expected: ErrInvalidOptions},
		{
			name:     "channel not utf8",
			mode:     ModeStandalone,
			opts:     Options{PubSubSubscriptions: PubSubSubscriptions{PubSubPattern: {"news.\xff"}}},
			expected: ErrInvalidPubSub,
		},
		{
			name:     "negative retries",
			mode:     ModeStandalone,
			opts:     Options{ReconnectStrategy: &ReconnectStrategy{NumOfRetries: lo.ToPtr(-1)}},
			expected: ErrInvalidRetryStrategy,
		},
		{
			name:     "negative retries cluster",
			mode:     ModeCluster,
			opts:     Options{ReconnectStrategy: &ReconnectStrategy{NumOfRetries: lo.ToPtr(-1)}},
			expected: ErrInvalidRetryStrategy,
		},
		{
			name:     "missing factor",
			mode:     ModeStandalone,
			opts:     Options{ReconnectStrategy: &ReconnectStrategy{NumOfRetries: lo.ToPtr(1), ExponentBase: lo.ToPtr(2)}},
			expected: ErrInvalidRetryStrategy,
		},
		{
			name: "jitter over 100",
			mode: ModeStandalone,
			opts: Options{ReconnectStrategy: &ReconnectStrategy{
				NumOfRetries: lo.ToPtr(1), Factor: lo.ToPtr(1), ExponentBase: lo.ToPtr(2), JitterPercent: lo.ToPtr(101),
			}},
			expected: ErrInvalidRetryStrategy,
		},
		{
			name: "negative jitter",
			mode: ModeCluster,
			opts: Options{ReconnectStrategy: &ReconnectStrategy{
				NumOfRetries: lo.ToPtr(1), Factor: lo.ToPtr(1), ExponentBase: lo.ToPtr(2), JitterPercent: lo.ToPtr(-1),
			}},
			expected: ErrInvalidRetryStrategy,
		},
		{
			name: "factor over uint32",
			mode: ModeStandalone,
			opts: Options{ReconnectStrategy: &ReconnectStrategy{
				NumOfRetries: lo.ToPtr(1), Factor: lo.ToPtr(overUint32), ExponentBase: lo.ToPtr(2),
			}},
			expected: ErrInvalidRetryStrategy,
		},
		{name: "zero request timeout", mode: ModeStandalone, opts: Options{RequestTimeout: lo.ToPtr(0)}, expected: ErrInvalidTimeout},
		{name: "request timeout over uint32", mode: ModeStandalone, opts: Options{RequestTimeout: lo.ToPtr(overUint32)}, expected: ErrInvalidTimeout},
		{
			name:     "connection timeout over uint32",
			mode:     ModeCluster,
			opts:     Options{AdvancedConfig: &AdvancedConfig{ConnectionTimeout: lo.ToPtr(overUint32)}},
			expected: ErrInvalidTimeout,
		},
		{name: "database over uint32", mode: ModeStandalone, opts: Options{DatabaseId: lo.ToPtr(overUint32)}, expected: ErrInvalidDatabaseId},
		{name: "inflight over uint32", mode: ModeCluster, opts: Options{InflightRequestsLimit: lo.ToPtr(overUint32)}, expected: ErrInvalidInflightLimit},
		{name: "negative request timeout", mode: ModeCluster, opts: Options{RequestTimeout: lo.ToPtr(-5)}, expected: ErrInvalidTimeout},
		{
			name:     "zero connection timeout",
			mode:     ModeStandalone,
			opts:     Options{AdvancedConfig: &AdvancedConfig{ConnectionTimeout: lo.ToPtr(0)}},
			expected: ErrInvalidTimeout,
		},
		{name: "negative database", mode: ModeStandalone, opts: Options{DatabaseId: lo.ToPtr(-1)}, expected: ErrInvalidDatabaseId},
		{name: "database in cluster", mode: ModeCluster, opts: Options{DatabaseId: lo.ToPtr(1)}, expected: ErrInvalidDatabaseId},
		{
			name:     "zero manual interval",
			mode:     ModeCluster,
			opts:     Options{PeriodicChecks: PeriodicChecksManualInterval{}},
			expected: ErrInvalidPeriodicChecksConfig,
		},
		{
			name:     "negative manual interval",
			mode:     ModeCluster,
			opts:     Options{PeriodicChecks: PeriodicChecksManualInterval{Interval: -time.Second}},
			expected: ErrInvalidPeriodicChecksConfig,
		},
		{
			name:     "fractional manual interval",
			mode:     ModeCluster,
			opts:     Options{PeriodicChecks: PeriodicChecksManualInterval{Interval: 1500 * time.Millisecond}},
			expected: ErrInvalidPeriodicChecksConfig,
		},
		{
			name:     "periodic checks in standalone",
			mode:     ModeStandalone,
			opts:     Options{PeriodicChecks: PeriodicChecksDisabled{}},
			expected: ErrInvalidPeriodicChecksConfig,
		},
		{name: "inflight in standalone", mode: ModeStandalone, opts: Options{InflightRequestsLimit: lo.ToPtr(10)}, expected: ErrInvalidInflightLimit},
		{name: "zero inflight", mode: ModeCluster, opts: Options{InflightRequestsLimit: lo.ToPtr(0)}, expected: ErrInvalidInflightLimit},
		{name: "empty password", mode: ModeStandalone, opts: Options{Credentials: &Credentials{}}, expected: ErrInvalidCredentials},
		{
			name:     "empty username",
			mode:     ModeStandalone,
			opts:     Options{Credentials: &Credentials{Username: lo.ToPtr(""), Password: "p"}},
			expected: ErrInvalidCredentials,
		},
		{name: "unknown read from", mode: ModeStandalone, opts: Options{ReadFrom: lo.ToPtr(ReadFrom(2))}, expected: ErrInvalidReadFrom},
		{name: "az without client az", mode: ModeCluster, opts: Options{ReadFrom: lo.ToPtr(ReadFromAZAffinity)}, expected: ErrInvalidReadFrom},
		{
			name:     "sharded pubsub in standalone",
			mode:     ModeStandalone,
			opts:     Options{PubSubSubscriptions: PubSubSubscriptions{PubSubSharded: {"a"}}},
			expected: ErrInvalidPubSub,
		},
		{
			name:     "empty channel",
			mode:     ModeCluster,
			opts:     Options{PubSubSubscriptions: PubSubSubscriptions{PubSubExact: {""}}},
			expected: ErrInvalidPubSub,
		},
		{
			name:     "unknown channel type",
			mode:     ModeCluster,
			opts:     Options{PubSubSubscriptions: PubSubSubscriptions{PubSubChannelType(9): {"a"}}},
			expected: ErrInvalidPubSub,
		},
		{name: "unknown protocol", mode: ModeStandalone, opts: Options{Protocol: lo.ToPtr(ProtocolVersion(7))}, expected: ErrInvalidOptions},
		{
			name:     "refresh topology in standalone",
			mode:     ModeStandalone,
			opts:     Options{AdvancedConfig: &AdvancedConfig{RefreshTopologyFromInitialNodes: lo.ToPtr(true)}},
			expected: ErrInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addrs := tt.addresses
			if addrs == nil && tt.expected != ErrInvalidAddressList {
				addrs = localhost()
			}
			req, err := Build(tt.mode, addrs, tt.opts)
			require.Nil(t, req)
			require.ErrorIs(t, err, tt.expected)

			var buildErr *BuildError
			require.ErrorAs(t, err, &buildErr)
			require.NotEmpty(t, buildErr.Reason)
		})
	}
}

func TestValidationFailsFast(t *testing.T) {
	_, err := BuildClusterRequest(nil, Options{
		RequestTimeout: lo.ToPtr(-1),
		DatabaseId:     lo.ToPtr(3),
	})
	require.ErrorIs(t, err, ErrInvalidAddressList)
	require.NotErrorIs(t, err, ErrInvalidTimeout)

	_, err = BuildClusterRequest(localhost(), Options{
		RequestTimeout: lo.ToPtr(-1),
		DatabaseId:     lo.ToPtr(3),
	})
	require.ErrorIs(t, err, ErrInvalidTimeout)
	require.EqualError(t, err, "invalid timeout: request_timeout: must be positive, got -1")
}

func TestBuildConcurrent(t *testing.T) {
	opts := Options{
		UseTls:         lo.ToPtr(true),
		Credentials:    &Credentials{Password: "secret"},
		PeriodicChecks: PeriodicChecksManualInterval{Interval: 10 * time.Second},
	}
	expected, err := BuildClusterRequest(localhost(), opts)
	require.NoError(t, err)

	p := pool.NewWithResults[*ConnectionRequest]().WithErrors()
	for range 32 {
		p.Go(func() (*ConnectionRequest, error) {
			return BuildClusterRequest(localhost(), opts)
		})
	}
	results, err := p.Wait()
	require.NoError(t, err)
	require.Len(t, results, 32)
	for _, r := range results {
		require.True(t, expected.Equal(r))
		require.Equal(t, Encode(expected), Encode(r))
	}
}
