// Package idgen generates short unique identifiers for proposals, execution
// steps and audit events.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

var counter uint64

// New returns a unique identifier combining a monotonic counter with random
// bytes. The counter keeps identifiers ordered by creation within a process;
// the random suffix keeps them unique across restarts.
func New() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand only fails if the platform source is broken.
		panic(err)
	}
	n := atomic.AddUint64(&counter, 1)
	return fmt.Sprintf("%06d-%s", n, hex.EncodeToString(buf[:]))
}
