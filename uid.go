package cbtools

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// DefaultUIDPrefix is used by EnsureUID when a document declares no
// prefix of its own.
const DefaultUIDPrefix = "st"

// NewUID mints a fresh document identifier, "<prefix>_<ulid>". ULIDs
// are random enough to never collide in practice and sort by creation
// time, which keeps bucket scans roughly chronological.
func NewUID(prefix string) string {
	return prefix + "_" + strings.ToLower(ulid.Make().String())
}
