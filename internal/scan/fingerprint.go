package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// fingerprintChunkSize bounds how much of a file is held in memory while
// hashing, so large files do not blow up the process.
const fingerprintChunkSize = 4096

// Fingerprint computes the SHA256 content hash of a file, reading it in
// bounded-size chunks. The hash depends only on file bytes, never on
// metadata such as timestamps or permissions.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	buf := make([]byte, fingerprintChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
