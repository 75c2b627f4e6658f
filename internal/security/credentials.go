package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"chatrelay/internal/domain"
)

const (
	// kdfIterations is fixed per format version; bump CredentialVersion
	// before changing it so stored records stay decryptable.
	kdfIterations = 100_000
	keySize       = 32 // AES-256
	saltSize      = 16

	// CredentialVersion tags the on-disk record format.
	CredentialVersion = 1
)

// EncryptedCredential is the portable ciphertext record for one stored
// credential. All binary fields are base64 so the record survives JSON
// and localStorage round trips unchanged.
type EncryptedCredential struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Version    int    `json:"version"`
}

// CredentialCipher encrypts and decrypts agent credentials with
// AES-256-GCM under a key derived from the user's passphrase. A fresh
// salt and nonce are drawn per encryption, so equal plaintexts never
// produce equal records.
type CredentialCipher struct {
	mu         sync.RWMutex
	passphrase []byte
}

// NewCredentialCipher creates a cipher from a passphrase.
func NewCredentialCipher(passphrase string) (*CredentialCipher, error) {
	if passphrase == "" {
		return nil, domain.NewDomainError("NewCredentialCipher", domain.ErrEncryption, "passphrase must not be empty")
	}
	return &CredentialCipher{passphrase: []byte(passphrase)}, nil
}

// deriveKey runs PBKDF2-SHA256 over the passphrase with salt.
func deriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, kdfIterations, keySize, sha256.New)
}

// Encrypt seals plaintext into a versioned record.
func (c *CredentialCipher) Encrypt(plaintext string) (*EncryptedCredential, error) {
	c.mu.RLock()
	passphrase := make([]byte, len(c.passphrase))
	copy(passphrase, c.passphrase)
	c.mu.RUnlock()

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: generate salt: %w", domain.ErrEncryption, err)
	}

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEncryption, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %w", domain.ErrEncryption, err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return &EncryptedCredential{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Version:    CredentialVersion,
	}, nil
}

// Decrypt opens a record. A wrong passphrase fails GCM authentication and
// reports domain.ErrDecryption; the caller cannot distinguish a wrong
// passphrase from tampered ciphertext, which is intentional.
func (c *CredentialCipher) Decrypt(rec *EncryptedCredential) (string, error) {
	if rec.Version != CredentialVersion {
		return "", domain.NewDomainError("CredentialCipher.Decrypt", domain.ErrDecryption,
			fmt.Sprintf("unsupported record version %d", rec.Version))
	}

	sealed, err := base64.StdEncoding.DecodeString(rec.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %w", domain.ErrDecryption, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(rec.IV)
	if err != nil {
		return "", fmt.Errorf("%w: decode iv: %w", domain.ErrDecryption, err)
	}
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %w", domain.ErrDecryption, err)
	}

	c.mu.RLock()
	passphrase := make([]byte, len(c.passphrase))
	copy(passphrase, c.passphrase)
	c.mu.RUnlock()

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDecryption, err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", domain.NewDomainError("CredentialCipher.Decrypt", domain.ErrDecryption, "bad nonce length")
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDecryption, err)
	}
	return string(plaintext), nil
}

// Rotate swaps the passphrase. Existing records must be re-encrypted by
// the caller; each record carries its own salt, so old records stay
// readable only under the old passphrase.
func (c *CredentialCipher) Rotate(newPassphrase string) error {
	if newPassphrase == "" {
		return domain.NewDomainError("CredentialCipher.Rotate", domain.ErrEncryption, "passphrase must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.passphrase {
		c.passphrase[i] = 0
	}
	c.passphrase = []byte(newPassphrase)
	return nil
}

// Zeroize clears the passphrase bytes from memory. Call on shutdown.
func (c *CredentialCipher) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.passphrase {
		c.passphrase[i] = 0
	}
}

// DecodeRecord parses s as a JSON EncryptedCredential. The second return
// is false for plaintext values, letting callers pass unencrypted tokens
// through untouched.
func DecodeRecord(s string) (*EncryptedCredential, bool) {
	var rec EncryptedCredential
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return nil, false
	}
	if rec.Ciphertext == "" || rec.IV == "" || rec.Salt == "" {
		return nil, false
	}
	return &rec, true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
