package gateways

import (
	"crypto/md5"  //nolint:gosec // G501: md5 sidecars are still published by Maven repositories
	"crypto/sha1" //nolint:gosec // G505: sha1 sidecars are the Maven default
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// checksumAlgorithms lists sidecar extensions in order of preference
var checksumAlgorithms = []struct {
	ext     string
	newHash func() hash.Hash
}{
	{"sha512", sha512.New},
	{"sha256", sha256.New},
	{"sha1", sha1.New},
	{"md5", md5.New},
}

// ChecksumVerifier checks artifact bytes against published digests
type ChecksumVerifier struct{}

// NewChecksumVerifier creates a new checksum verifier
func NewChecksumVerifier() *ChecksumVerifier {
	return &ChecksumVerifier{}
}

// Algorithms returns the supported sidecar extensions, strongest first
func (v *ChecksumVerifier) Algorithms() []string {
	out := make([]string, len(checksumAlgorithms))
	for i, a := range checksumAlgorithms {
		out[i] = a.ext
	}
	return out
}

// VerifyChecksum compares data against a sidecar body ("<hex>" or "<hex>  <file>")
func (v *ChecksumVerifier) VerifyChecksum(data []byte, algorithm, sidecar string) error {
	fields := strings.Fields(sidecar)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty %s sidecar", entities.ErrChecksumMismatch, algorithm)
	}
	expectedSum := strings.ToLower(fields[0])

	actualSum, err := v.CalculateChecksum(data, algorithm)
	if err != nil {
		return err
	}

	if actualSum != expectedSum {
		return fmt.Errorf("%w: expected %s, got %s (%s)", entities.ErrChecksumMismatch, expectedSum, actualSum, algorithm)
	}
	return nil
}

// CalculateChecksum returns the hex digest of data
func (v *ChecksumVerifier) CalculateChecksum(data []byte, algorithm string) (string, error) {
	for _, a := range checksumAlgorithms {
		if a.ext == algorithm {
			h := a.newHash()
			h.Write(data) //nolint:errcheck // hash.Hash never returns an error
			return hex.EncodeToString(h.Sum(nil)), nil
		}
	}
	return "", fmt.Errorf("unsupported checksum algorithm %q", algorithm)
}
