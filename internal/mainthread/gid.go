package mainthread

import (
	"bytes"
	"runtime"
	"strconv"
)

// gid returns the current goroutine's id, parsed from the runtime stack
// header ("goroutine N [running]:"). The runtime exposes no direct API for
// this; the header format has been stable across Go releases.
func gid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
