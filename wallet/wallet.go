// Package wallet implements a participant's asymmetric keypair, address
// derivation and detached signing: 2048-bit RSA, PSS padding with
// MGF1-SHA256 and maximum salt length, with addresses being the
// PEM-encoded SubjectPublicKeyInfo of the public key.
package wallet

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const keyBits = 2048

// Wallet holds a participant's keypair. Key generation failure is fatal;
// everything else returns an error the caller can log and continue past.
type Wallet struct {
	private *rsa.PrivateKey
	address string
}

// New generates a fresh 2048-bit RSA keypair.
func New() (*Wallet, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: marshal public key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})

	return &Wallet{private: key, address: string(pemBytes)}, nil
}

// Address returns the canonical PEM-serialised public key, used
// throughout the protocol as a participant's wire address.
func (w *Wallet) Address() string {
	return w.address
}

// Sign produces a detached RSA-PSS/SHA-256 signature over the supplied
// canonical bytes, using the maximum available salt length.
func (w *Wallet) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPSS(rand.Reader, w.private, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet: sign: %w", err)
	}
	return sig, nil
}

// Verify checks a detached RSA-PSS/SHA-256 signature against an address
// (PEM-encoded public key) and the signed bytes. It is a package-level
// function, not a Wallet method, because verification happens on every
// receiver for every other participant's transactions, never against the
// local keypair.
func Verify(address string, message, signature []byte) error {
	block, _ := pem.Decode([]byte(address))
	if block == nil {
		return fmt.Errorf("wallet: verify: address is not PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("wallet: verify: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("wallet: verify: address is not an RSA public key")
	}

	digest := sha256.Sum256(message)
	if err := rsa.VerifyPSS(rsaPub, crypto.SHA256, digest[:], signature, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	}); err != nil {
		return fmt.Errorf("wallet: verify: signature invalid: %w", err)
	}
	return nil
}
