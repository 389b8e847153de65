// Package integrity computes content digests for executable files.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Unavailable is the sentinel digest recorded when a hash could not be
// computed: empty path, file gone by the time we looked, permission denied,
// or any read failure. It is distinct from "" so consumers can tell
// "attempted and failed" apart from "never set".
const Unavailable = "unavailable"

// HashFile returns the lowercase hex SHA-256 digest of the file at path,
// or Unavailable. It never returns an empty string and never propagates an
// error: integrity metadata is best effort and must not interrupt
// monitoring.
func HashFile(path string) string {
	if path == "" {
		return Unavailable
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Unavailable
	}

	f, err := os.Open(path)
	if err != nil {
		return Unavailable
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // Read-only file, defer cleanup
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Unavailable
	}

	return hex.EncodeToString(h.Sum(nil))
}
