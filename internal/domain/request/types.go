package request

import (
	"cmp"
	"net"
	"strconv"
	"time"
)

// Mode selects the standalone or cluster construction path.
type Mode int

const (
	ModeStandalone Mode = iota
	ModeCluster
)

func (m Mode) String() string {
	if m == ModeCluster {
		return "cluster"
	}
	return "standalone"
}

// NodeAddress is one seed node of the deployment.
type NodeAddress struct {
	Host string
	Port uint16
}

func (a NodeAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// Compare orders addresses by host, then port.
func (a NodeAddress) Compare(b NodeAddress) int {
	if c := cmp.Compare(a.Host, b.Host); c != 0 {
		return c
	}
	return cmp.Compare(a.Port, b.Port)
}

// TlsMode values match the wire enum.
type TlsMode int32

const (
	TlsModeNoTls       TlsMode = 0
	TlsModeSecureTls   TlsMode = 1
	TlsModeInsecureTls TlsMode = 2
)

func (m TlsMode) String() string {
	switch m {
	case TlsModeNoTls:
		return "NoTls"
	case TlsModeSecureTls:
		return "SecureTls"
	case TlsModeInsecureTls:
		return "InsecureTls"
	default:
		return "TlsMode(" + strconv.Itoa(int(m)) + ")"
	}
}

func (m TlsMode) valid() bool {
	return m >= TlsModeNoTls && m <= TlsModeInsecureTls
}

// ReadFrom values match the wire enum; 2 is reserved for the retired LowestLatency strategy.
type ReadFrom int32

const (
	ReadFromPrimary                      ReadFrom = 0
	ReadFromPreferReplica                ReadFrom = 1
	ReadFromAZAffinity                   ReadFrom = 3
	ReadFromAZAffinityReplicasAndPrimary ReadFrom = 4
)

var readFromNames = map[ReadFrom]string{ //nolint:gochecknoglobals // enum names
	ReadFromPrimary:                      "Primary",
	ReadFromPreferReplica:                "PreferReplica",
	ReadFromAZAffinity:                   "AZAffinity",
	ReadFromAZAffinityReplicasAndPrimary: "AZAffinityReplicasAndPrimary",
}

func (r ReadFrom) String() string {
	if name, ok := readFromNames[r]; ok {
		return name
	}
	return "ReadFrom(" + strconv.Itoa(int(r)) + ")"
}

func (r ReadFrom) valid() bool {
	_, ok := readFromNames[r]
	return ok
}

// azAware reports whether the strategy routes by client availability zone.
func (r ReadFrom) azAware() bool {
	return r == ReadFromAZAffinity || r == ReadFromAZAffinityReplicasAndPrimary
}

// ProtocolVersion selects RESP3 (default) or RESP2.
type ProtocolVersion int32

const (
	ProtocolRESP3 ProtocolVersion = 0
	ProtocolRESP2 ProtocolVersion = 1
)

func (p ProtocolVersion) String() string {
	switch p {
	case ProtocolRESP3:
		return "RESP3"
	case ProtocolRESP2:
		return "RESP2"
	default:
		return "ProtocolVersion(" + strconv.Itoa(int(p)) + ")"
	}
}

func (p ProtocolVersion) valid() bool {
	return p == ProtocolRESP3 || p == ProtocolRESP2
}

// PubSubChannelType values match the wire map keys.
type PubSubChannelType uint32

const (
	PubSubExact   PubSubChannelType = 0
	PubSubPattern PubSubChannelType = 1
	PubSubSharded PubSubChannelType = 2
)

func (t PubSubChannelType) String() string {
	switch t {
	case PubSubExact:
		return "Exact"
	case PubSubPattern:
		return "Pattern"
	case PubSubSharded:
		return "Sharded"
	default:
		return "PubSubChannelType(" + strconv.FormatUint(uint64(t), 10) + ")"
	}
}

func (t PubSubChannelType) valid() bool {
	return t <= PubSubSharded
}

// PubSubSubscriptions maps a channel type to its channel names or patterns.
type PubSubSubscriptions map[PubSubChannelType][]string

// AuthenticationInfo carries ACL credentials; a nil Username means the default user.
type AuthenticationInfo struct {
	Username *string
	Password string
}

func (a AuthenticationInfo) equal(b AuthenticationInfo) bool {
	return a.Password == b.Password && ptrEqual(a.Username, b.Username)
}

// RetryStrategy is the reconnect backoff handed to the engine:
// delay(n) = Factor * ExponentBase^n milliseconds, widened by JitterPercent.
type RetryStrategy struct {
	NumberOfRetries uint32
	Factor          uint32
	ExponentBase    uint32
	JitterPercent   *uint32
}

func (s RetryStrategy) equal(o RetryStrategy) bool {
	return s.NumberOfRetries == o.NumberOfRetries &&
		s.Factor == o.Factor &&
		s.ExponentBase == o.ExponentBase &&
		ptrEqual(s.JitterPercent, o.JitterPercent)
}

// PeriodicChecks is the cluster topology refresh setting. Exactly one of
// PeriodicChecksEnabledDefault, PeriodicChecksDisabled or
// PeriodicChecksManualInterval; a nil value in Options means "not specified".
type PeriodicChecks interface {
	isPeriodicChecks()
}

type PeriodicChecksEnabledDefault struct{}

type PeriodicChecksDisabled struct{}

// PeriodicChecksManualInterval refreshes topology every Interval; whole seconds only.
type PeriodicChecksManualInterval struct {
	Interval time.Duration
}

func (PeriodicChecksEnabledDefault) isPeriodicChecks() {}
func (PeriodicChecksDisabled) isPeriodicChecks()       {}
func (PeriodicChecksManualInterval) isPeriodicChecks() {}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
