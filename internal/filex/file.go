// Package filex holds small filesystem helpers.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrivateDirMode is used for directories holding vault data.
const PrivateDirMode os.FileMode = 0o700

// EnsureParentDir creates the directory that will contain path, owner-only,
// and returns it as an absolute path. Existing directories are left as
// they are.
func EnsureParentDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	if err := os.MkdirAll(dir, PrivateDirMode); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}
