package opener

import "os"

// IsPlausible reports whether path could hold a store of the given kind:
// an existing regular file for indexed stores, an existing directory
// otherwise. It only stats the path, but that is still blocking I/O.
func IsPlausible(path string, indexed bool) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if indexed {
		return info.Mode().IsRegular()
	}
	return info.IsDir()
}
