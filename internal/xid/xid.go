// Package xid generates short prefixed identifiers for records that need a
// unique string id rather than a database sequence.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id of the form "<prefix>_<unix-millis>_<random>". The
// timestamp keeps ids roughly sortable; the random suffix makes collisions
// within a millisecond vanishingly unlikely.
func New(prefix string) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}
