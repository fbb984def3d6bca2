package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"solana-wallet-bot/internal/solana"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/scrypt"
)

// ErrDecryption is returned when a sealed key cannot be unsealed. It signals
// corrupted key material or a wrong passphrase and must never be treated as
// retryable.
var ErrDecryption = errors.New("failed to decrypt sealed key")

const (
	saltLen = 16

	// scrypt parameters for deriving the sealing key from the passphrase.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// CustodyInterface defines the key-custody contract used by the executor and
// the command surface.
type CustodyInterface interface {
	Generate() (address string, sealedKey string, err error)
	Sign(sealedKey string, txBytes []byte) ([]byte, error)
	SignMessage(sealedKey string, message []byte) ([]byte, error)
}

// Custody generates keypairs and signs transactions with them. Private keys
// live encrypted at rest (scrypt-derived AES-256-GCM, random salt and nonce
// per key) and are decrypted only for the duration of a signing call. The
// plaintext secret is never persisted or logged.
type Custody struct {
	passphrase []byte
}

// ensure Custody implements the interface
var _ CustodyInterface = (*Custody)(nil)

// NewCustody creates a Custody sealing keys under the given passphrase.
func NewCustody(passphrase string) *Custody {
	return &Custody{passphrase: []byte(passphrase)}
}

// Generate creates a fresh ed25519 keypair and returns the base58 address
// together with the sealed private key.
func (c *Custody) Generate() (string, string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate keypair: %w", err)
	}

	sealed, err := c.seal(priv)
	if err != nil {
		return "", "", err
	}

	return base58.Encode(pub), sealed, nil
}

// Sign decrypts the sealed key, signs the transaction's message and writes
// the signature into the fee payer's slot of the signature envelope.
func (c *Custody) Sign(sealedKey string, txBytes []byte) ([]byte, error) {
	priv, err := c.unseal(sealedKey)
	if err != nil {
		return nil, err
	}

	signed, err := solana.SignTransaction(txBytes, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// SignMessage decrypts the sealed key and signs raw message bytes.
func (c *Custody) SignMessage(sealedKey string, message []byte) ([]byte, error) {
	priv, err := c.unseal(sealedKey)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, message), nil
}

// seal encrypts priv as base64(salt || nonce || ciphertext).
func (c *Custody) seal(priv ed25519.PrivateKey) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := c.cipherFor(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	blob := append(salt, nonce...)
	blob = gcm.Seal(blob, nonce, priv, nil)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// unseal reverses seal. Any malformed or tampered input maps to ErrDecryption.
func (c *Custody) unseal(sealedKey string) (ed25519.PrivateKey, error) {
	blob, err := base64.StdEncoding.DecodeString(sealedKey)
	if err != nil {
		return nil, ErrDecryption
	}
	if len(blob) < saltLen {
		return nil, ErrDecryption
	}
	salt := blob[:saltLen]

	gcm, err := c.cipherFor(salt)
	if err != nil {
		return nil, err
	}
	if len(blob) < saltLen+gcm.NonceSize() {
		return nil, ErrDecryption
	}
	nonce := blob[saltLen : saltLen+gcm.NonceSize()]

	priv, err := gcm.Open(nil, nonce, blob[saltLen+gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecryption
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrDecryption
	}
	return ed25519.PrivateKey(priv), nil
}

func (c *Custody) cipherFor(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.passphrase, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
