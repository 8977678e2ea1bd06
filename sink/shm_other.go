//go:build !linux

package sink

import "bytes"

// ShmSupported reports whether shared memory transmission can be used
func ShmSupported() bool {
	return false
}

func (r *KittyRenderer) writeShm(buf *bytes.Buffer, rgb []byte, width, height int) bool {
	return false
}
