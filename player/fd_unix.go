//go:build unix

package player

import "golang.org/x/sys/unix"

// dupFD duplicates a descriptor so the session owns its own copy
func dupFD(fd uintptr) (int, error) {
	return unix.Dup(int(fd))
}
