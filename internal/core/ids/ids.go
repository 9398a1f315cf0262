package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// ClientId names one client instance built from a connection request.
type ClientId string

func NewClientId() ClientId {
	return ClientId(strings.ToLower(ulid.Make().String()))
}

func (id ClientId) String() string {
	return string(id)
}

// Valid reports whether id parses as a ULID.
func (id ClientId) Valid() bool {
	_, err := ulid.ParseStrict(strings.ToUpper(string(id)))
	return err == nil
}
