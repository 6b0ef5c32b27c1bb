//go:build !linux

package claim

import "os"

// renameNoReplace на платформах без renameat2 полагается на
// предварительную проверку маркера в Claim.
func renameNoReplace(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
