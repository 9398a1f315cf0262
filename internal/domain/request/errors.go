package request

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAddressList          = errors.New("invalid address list")
	ErrInvalidRetryStrategy        = errors.New("invalid retry strategy")
	ErrInvalidTimeout              = errors.New("invalid timeout")
	ErrInvalidDatabaseId           = errors.New("invalid database id")
	ErrInvalidPeriodicChecksConfig = errors.New("invalid periodic checks config")
	ErrMalformedEncoding           = errors.New("malformed encoding")

	ErrInvalidTls           = errors.New("invalid tls config")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidReadFrom      = errors.New("invalid read from strategy")
	ErrInvalidInflightLimit = errors.New("invalid inflight requests limit")
	ErrInvalidPubSub        = errors.New("invalid pubsub subscriptions")
	ErrInvalidOptions       = errors.New("invalid options")
)

// BuildError reports the first option that failed validation.
type BuildError struct {
	Kind   error
	Field  string
	Reason string
}

func (e *BuildError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Reason)
}

func (e *BuildError) Unwrap() error {
	return e.Kind
}

func buildErr(kind error, field, format string, args ...any) *BuildError {
	return &BuildError{Kind: kind, Field: field, Reason: fmt.Sprintf(format, args...)}
}
