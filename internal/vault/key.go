package vault

import (
	"fmt"
	"path"
	"strings"
)

// checkKey rejects keys that would escape the vault root or that name a
// directory rather than a blob.
func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty vault key")
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("invalid vault key: %q", key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("invalid vault key: %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("invalid vault key: %q", key)
		}
	}
	return nil
}
