//go:build !unix

package player

import "errors"

func dupFD(fd uintptr) (int, error) {
	return 0, errors.New("descriptor sources are not supported on this platform")
}
