//go:build unix

package tools

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isBusy(err error) bool {
	return errors.Is(err, unix.ETXTBSY)
}
