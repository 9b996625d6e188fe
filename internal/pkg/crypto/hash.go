// Package crypto provides hashing utilities for the Alexander engine.
//
// Two digests exist side by side: the MD5 ETag identifies a body to S3
// clients, and the SHA-256 content address keys deduplicated blob storage.
// Storage backends hash the content address while staging; ETagReader picks
// up the ETag on the same pass through the body.
package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// EmptyETag is the ETag of a zero-byte body (MD5 of the empty string).
const EmptyETag = "d41d8cd98f00b204e9800998ecf8427e"

// ETagReader tees a body through an MD5 digest while something downstream
// (usually a storage backend) consumes it, and counts the bytes it saw.
type ETagReader struct {
	tee io.Reader
	sum hash.Hash
	n   int64
}

// NewETagReader wraps a body reader.
func NewETagReader(r io.Reader) *ETagReader {
	sum := md5.New()
	return &ETagReader{
		tee: io.TeeReader(r, sum),
		sum: sum,
	}
}

// Read implements io.Reader.
func (e *ETagReader) Read(p []byte) (int, error) {
	n, err := e.tee.Read(p)
	e.n += int64(n)
	return n, err
}

// Sum returns the unquoted lowercase ETag of everything read so far.
// Call it once the body is fully consumed.
func (e *ETagReader) Sum() string {
	return hex.EncodeToString(e.sum.Sum(nil))
}

// BytesRead returns how many body bytes passed through.
func (e *ETagReader) BytesRead() int64 {
	return e.n
}

// ComputeSHA256 computes the hex content address of a byte slice.
func ComputeSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeETag computes the unquoted ETag (MD5 hex) of a byte slice.
func ComputeETag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ValidateSHA256 reports whether a string is a well-formed hex content
// address.
func ValidateSHA256(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
