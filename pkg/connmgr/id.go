package connmgr

import (
	"strconv"
	"sync/atomic"
)

var connSeq int64

// newConnID returns a process-local, monotonically increasing connection
// identifier for logging and error attribution (spec §4.5's ConnID field).
func newConnID() string {
	n := atomic.AddInt64(&connSeq, 1)
	return "conn-" + strconv.FormatInt(n, 36)
}
