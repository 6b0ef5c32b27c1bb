//go:build linux

package claim

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplace атомарно переименовывает oldpath в newpath
// и отказывает с EEXIST, если newpath уже существует.
// Файловые системы без RENAME_NOREPLACE получают обычный rename.
func renameNoReplace(oldpath, newpath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS) {
		return os.Rename(oldpath, newpath)
	}
	if err != nil {
		return &os.LinkError{Op: "renameat2", Old: oldpath, New: newpath, Err: err}
	}
	return nil
}
