// Package gpg verifies detached OpenPGP signatures of downloaded artifacts.
package gpg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// ErrNoKeys is returned when a signature is checked against an empty keyring
var ErrNoKeys = errors.New("no GPG keys imported")

const armoredSignaturePrefix = "-----BEGIN PGP SIGNATURE---"

// Verifier holds a keyring and checks detached signatures against it.
// Imports and checks may run concurrently.
type Verifier struct {
	mu         sync.RWMutex
	keyring    openpgp.EntityList
	httpClient *http.Client
}

// NewVerifier creates a verifier with an empty keyring
func NewVerifier() *Verifier {
	return &Verifier{
		keyring: make(openpgp.EntityList, 0),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ImportKeysFromURL imports every key of a published KEYS file
func (v *Verifier) ImportKeysFromURL(ctx context.Context, keysURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keysURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download KEYS file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("KEYS file download failed with status %d", resp.StatusCode)
	}

	// keyrings of large projects run to a few MB
	keys, err := openpgp.ReadArmoredKeyRing(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("failed to parse KEYS file: %w", err)
	}
	return v.add(keys, "KEYS file")
}

// ImportKeyFromFile imports an armored or binary public keyring file
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	//nolint:gosec // G304: keyPath comes from operator configuration
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}

	keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keys, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}
	return v.add(keys, "file")
}

func (v *Verifier) add(keys openpgp.EntityList, source string) error {
	if len(keys) == 0 {
		return fmt.Errorf("no keys found in %s", source)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keyring = append(v.keyring, keys...)
	return nil
}

// VerifyDetached checks an armored or binary detached signature over data
func (v *Verifier) VerifyDetached(data, signature []byte) error {
	v.mu.RLock()
	keyring := v.keyring
	v.mu.RUnlock()

	if len(keyring) == 0 {
		return ErrNoKeys
	}
	// GPG signatures are typically < 1KB
	if len(signature) < 10 || len(signature) > 10*1024 {
		return fmt.Errorf("signature has implausible size %d", len(signature))
	}

	var err error
	if bytes.HasPrefix(signature, []byte(armoredSignaturePrefix)) {
		_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	}
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// KeyringSize returns the number of imported keys
func (v *Verifier) KeyringSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keyring)
}
