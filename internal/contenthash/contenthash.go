// Package contenthash derives the content-addressed identity of an uploaded
// document. The digest doubles as the ledger deduplication key and as the
// pointer embedded in the token's metadata URI.
package contenthash

import (
	"encoding/hex"
	"fmt"
	"io"

	sha256 "github.com/minio/sha256-simd"
)

// Size is the length of a digest in hex characters.
const Size = sha256.Size * 2

// Sum returns the lowercase hex SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumReader streams r through the hash and returns the digest with the
// number of bytes consumed.
func SumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// MetadataURI derives the token metadata pointer for a digest. It is a pure
// function of its inputs.
func MetadataURI(scheme, hash string) string {
	return scheme + "://" + hash
}

// Valid reports whether s looks like a digest produced by Sum.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
