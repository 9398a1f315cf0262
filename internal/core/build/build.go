package build

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// Set via -ldflags "-X .../internal/core/build.Version=...".
var (
	ServiceName = "glide-request" //nolint:gochecknoglobals // linker-set
	Version     = "dev"           //nolint:gochecknoglobals // linker-set
	Commit      = ""              //nolint:gochecknoglobals // linker-set
)

// GlobalInstanceId identifies this process in logs.
var GlobalInstanceId = strings.ToLower(ulid.Make().String()) //nolint:gochecknoglobals // per-process id
