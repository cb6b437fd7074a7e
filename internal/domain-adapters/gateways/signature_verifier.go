package gateways

import (
	"context"
	"fmt"

	"github.com/ochairo/instrumentation-verifier/internal/external-adapters/gpg"
)

// SignatureVerifier checks artifact .asc signatures against a keyring built
// from local key files and an optional published KEYS file
type SignatureVerifier struct {
	verifier *gpg.Verifier
}

// NewSignatureVerifier loads the keyring. It fails when no key could be imported.
func NewSignatureVerifier(ctx context.Context, keyringFiles []string, keysURL string) (*SignatureVerifier, error) {
	v := gpg.NewVerifier()
	for _, f := range keyringFiles {
		if err := v.ImportKeyFromFile(f); err != nil {
			return nil, fmt.Errorf("failed to import GPG key from file: %w", err)
		}
	}
	if keysURL != "" {
		if err := v.ImportKeysFromURL(ctx, keysURL); err != nil {
			return nil, fmt.Errorf("failed to import GPG keys from URL: %w", err)
		}
	}
	if v.KeyringSize() == 0 {
		return nil, gpg.ErrNoKeys
	}
	return &SignatureVerifier{verifier: v}, nil
}

// VerifyDetached verifies signature over data
func (s *SignatureVerifier) VerifyDetached(data, signature []byte) error {
	if err := s.verifier.VerifyDetached(data, signature); err != nil {
		return fmt.Errorf("GPG signature verification failed: %w", err)
	}
	return nil
}

// KeyringSize returns the number of keys loaded
func (s *SignatureVerifier) KeyringSize() int {
	return s.verifier.KeyringSize()
}
