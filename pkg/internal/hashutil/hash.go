package hashutil

import (
	"crypto/sha1"
	"encoding/json"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// JsonHash returns the sha1 hash of the JSON representation of v.
func JsonHash(v any) ([]byte, error) {
	j, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	h := sha1.Sum(j)
	return h[:], nil
}

// Sum returns the content hash of b.
func Sum(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// File returns the content hash of the file at path.
func File(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return Sum(b), nil
}

// Combine hashes the given parts in order.
// Parts are length prefixed so ("ab","c") and ("a","bc") differ.
func Combine(parts ...[]byte) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(strconv.Itoa(len(p)))
		_, _ = d.Write([]byte{0})
		_, _ = d.Write(p)
	}
	return d.Sum64()
}

// Hex formats a hash for logs and file names.
func Hex(h uint64) string {
	return strconv.FormatUint(h, 16)
}
