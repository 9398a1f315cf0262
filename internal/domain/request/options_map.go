package request

import (
	"fmt"
	"math"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
)

// mapOptions is the shape of the associative-array form of the options.
type mapOptions struct {
	Addresses []any `mapstructure:"addresses"`
	Options   `mapstructure:",squash"`
}

type mapAddress struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// FromMap decodes a loosely typed option set, e.g. parsed YAML/JSON:
//
//	addresses: [{host: localhost, port: 6379}, "10.0.0.2:6380"]
//	use_tls: true
//	read_from: prefer_replica
//	periodic_checks: disabled        # or enabled_default, or {manual_interval: 30}
//	advanced_config: {connection_timeout: 500, tls_config: {use_insecure_tls: true}}
//
// Keys may be snake_case or camelCase. Unknown keys are rejected.
func FromMap(raw map[string]any) ([]NodeAddress, Options, error) {
	var out mapOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			readFromHook,
			protocolHook,
			channelTypeHook,
			periodicChecksHook,
			pemHook,
			wholeNumberHook,
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return nil, Options{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if err := decoder.Decode(snakeKeys(raw)); err != nil {
		return nil, Options{}, &BuildError{Kind: ErrInvalidOptions, Reason: err.Error()}
	}

	addresses := make([]NodeAddress, 0, len(out.Addresses))
	for i, entry := range out.Addresses {
		addr, err := parseAddress(entry)
		if err != nil {
			return nil, Options{}, buildErr(ErrInvalidAddressList, "addresses", "entry %d: %v", i, err)
		}
		addresses = append(addresses, addr)
	}
	return addresses, out.Options, nil
}

// snakeKeys rewrites nested map keys to snake_case; values are left untouched.
func snakeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strcase.ToSnake(k)] = snakeKeys(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strcase.ToSnake(fmt.Sprint(k))] = snakeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = snakeKeys(val)
		}
		return out
	default:
		return v
	}
}

func parseAddress(entry any) (NodeAddress, error) {
	var addr mapAddress
	switch t := entry.(type) {
	case string:
		host, port, err := net.SplitHostPort(t)
		if err != nil {
			return NodeAddress{}, err
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return NodeAddress{}, fmt.Errorf("port %q: %w", port, err)
		}
		addr = mapAddress{Host: host, Port: p}
	default:
		if err := weakDecode(entry, &addr); err != nil {
			return NodeAddress{}, err
		}
	}
	if addr.Port < 1 || addr.Port > math.MaxUint16 {
		return NodeAddress{}, fmt.Errorf("port %d out of range [1,65535]", addr.Port)
	}
	return NodeAddress{Host: addr.Host, Port: uint16(addr.Port)}, nil
}

func enumKey(s string) string {
	return strings.ReplaceAll(strcase.ToSnake(strings.TrimSpace(s)), "-", "_")
}

var readFromByName = map[string]ReadFrom{ //nolint:gochecknoglobals // enum lookup
	"primary":                          ReadFromPrimary,
	"prefer_replica":                   ReadFromPreferReplica,
	"az_affinity":                      ReadFromAZAffinity,
	"az_affinity_replicas_and_primary": ReadFromAZAffinityReplicasAndPrimary,
}

func readFromHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	s, ok := data.(string)
	if !ok || to != reflect.TypeOf(ReadFrom(0)) {
		return data, nil
	}
	if v, ok := readFromByName[enumKey(s)]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown read_from %q", s)
}

func protocolHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	s, ok := data.(string)
	if !ok || to != reflect.TypeOf(ProtocolVersion(0)) {
		return data, nil
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RESP3":
		return ProtocolRESP3, nil
	case "RESP2":
		return ProtocolRESP2, nil
	default:
		return nil, fmt.Errorf("unknown protocol %q", s)
	}
}

func channelTypeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	s, ok := data.(string)
	if !ok || to != reflect.TypeOf(PubSubChannelType(0)) {
		return data, nil
	}
	switch enumKey(s) {
	case "exact":
		return PubSubExact, nil
	case "pattern":
		return PubSubPattern, nil
	case "sharded":
		return PubSubSharded, nil
	default:
		return nil, fmt.Errorf("unknown pubsub channel type %q", s)
	}
}

var periodicChecksType = reflect.TypeOf((*PeriodicChecks)(nil)).Elem() //nolint:gochecknoglobals // reflect type

// periodicChecksHook accepts "disabled", "enabled_default", a number of
// seconds, or {manual_interval: seconds}.
func periodicChecksHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != periodicChecksType {
		return data, nil
	}
	switch t := data.(type) {
	case PeriodicChecks:
		return t, nil
	case string:
		switch enumKey(t) {
		case "disabled":
			return PeriodicChecksDisabled{}, nil
		case "enabled_default", "default", "enabled":
			return PeriodicChecksEnabledDefault{}, nil
		default:
			return nil, fmt.Errorf("unknown periodic_checks %q", t)
		}
	case map[string]any:
		v, ok := t["manual_interval"]
		if !ok || len(t) != 1 {
			return nil, fmt.Errorf("periodic_checks map must hold only manual_interval")
		}
		return manualInterval(v)
	default:
		return manualInterval(data)
	}
}

func manualInterval(v any) (any, error) {
	var seconds int64
	if err := weakDecode(v, &seconds); err != nil {
		return nil, fmt.Errorf("periodic_checks manual_interval: %w", err)
	}
	return PeriodicChecksManualInterval{Interval: time.Duration(seconds) * time.Second}, nil
}

func pemHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to == reflect.TypeOf([]byte(nil)) {
		return []byte(data.(string)), nil //nolint:forcetypeassert // kind checked
	}
	return data, nil
}

// wholeNumberHook refuses to truncate a fractional float into an integer
// field; YAML and JSON numbers arrive as float64.
func wholeNumberHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	for to.Kind() == reflect.Pointer {
		to = to.Elem()
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	var f float64
	switch t := data.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	default:
		return data, nil
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not a whole number", data)
	}
	return data, nil
}

func weakDecode(input, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       wholeNumberHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
