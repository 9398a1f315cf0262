package main

import (
	"time"

	"github.com/samber/lo"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
)

// requestView is the JSON shape printed by the decode command. Secrets are
// reduced to presence flags.
type requestView struct {
	Mode                            string              `json:"mode"`
	Addresses                       []string            `json:"addresses"`
	TlsMode                         string              `json:"tls_mode"`
	RootCerts                       int                 `json:"root_certs,omitempty"`
	Username                        *string             `json:"username,omitempty"`
	HasPassword                     bool                `json:"has_password"`
	ReadFrom                        string              `json:"read_from"`
	Protocol                        string              `json:"protocol"`
	RequestTimeoutMs                *int64              `json:"request_timeout_ms,omitempty"`
	ConnectionTimeoutMs             *int64              `json:"connection_timeout_ms,omitempty"`
	RetryStrategy                   *retryView          `json:"retry_strategy,omitempty"`
	DatabaseId                      *uint32             `json:"database_id,omitempty"`
	ClientName                      *string             `json:"client_name,omitempty"`
	ClientAz                        *string             `json:"client_az,omitempty"`
	LazyConnect                     bool                `json:"lazy_connect"`
	PeriodicChecks                  string              `json:"periodic_checks,omitempty"`
	InflightRequestsLimit           *uint32             `json:"inflight_requests_limit,omitempty"`
	RefreshTopologyFromInitialNodes bool                `json:"refresh_topology_from_initial_nodes,omitempty"`
	PubSub                          map[string][]string `json:"pubsub_subscriptions,omitempty"`
}

type retryView struct {
	NumberOfRetries uint32  `json:"number_of_retries"`
	Factor          uint32  `json:"factor"`
	ExponentBase    uint32  `json:"exponent_base"`
	JitterPercent   *uint32 `json:"jitter_percent,omitempty"`
}

func present[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}

func millis(d time.Duration, ok bool) *int64 {
	return present(d.Milliseconds(), ok)
}

func newRequestView(r *request.ConnectionRequest) requestView {
	v := requestView{
		Mode: r.Mode().String(),
		Addresses: lo.Map(r.Addresses(), func(a request.NodeAddress, _ int) string {
			return a.String()
		}),
		TlsMode:                         r.TlsMode().String(),
		RootCerts:                       len(r.RootCerts()),
		ReadFrom:                        r.ReadFrom().String(),
		Protocol:                        r.Protocol().String(),
		RequestTimeoutMs:                millis(r.RequestTimeout()),
		ConnectionTimeoutMs:             millis(r.ConnectionTimeout()),
		DatabaseId:                      present(r.DatabaseId()),
		ClientName:                      present(r.ClientName()),
		ClientAz:                        present(r.ClientAz()),
		LazyConnect:                     r.LazyConnect(),
		InflightRequestsLimit:           present(r.InflightRequestsLimit()),
		RefreshTopologyFromInitialNodes: r.RefreshTopologyFromInitialNodes(),
	}
	if s, ok := r.ConnectionRetryStrategy(); ok {
		v.RetryStrategy = &retryView{
			NumberOfRetries: s.NumberOfRetries,
			Factor:          s.Factor,
			ExponentBase:    s.ExponentBase,
			JitterPercent:   s.JitterPercent,
		}
	}
	if auth, ok := r.AuthenticationInfo(); ok {
		v.Username = auth.Username
		v.HasPassword = auth.Password != ""
	}
	switch pc := r.PeriodicChecks().(type) {
	case request.PeriodicChecksEnabledDefault:
		v.PeriodicChecks = "enabled_default"
	case request.PeriodicChecksDisabled:
		v.PeriodicChecks = "disabled"
	case request.PeriodicChecksManualInterval:
		v.PeriodicChecks = "manual:" + pc.Interval.String()
	}
	if subs := r.PubSubSubscriptions(); len(subs) > 0 {
		v.PubSub = lo.MapKeys(subs, func(_ []string, kind request.PubSubChannelType) string {
			return kind.String()
		})
	}
	return v
}
