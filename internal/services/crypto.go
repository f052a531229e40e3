package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
)

var errSealedTooShort = errors.New("sealed blob shorter than its nonce")

// CryptoService seals screenshot blobs with AES-256-GCM. It satisfies
// storage.Cipher.
type CryptoService struct {
	key []byte
}

// NewCryptoService derives the AES-256 key from APP_SECRET.
func NewCryptoService(secret string) *CryptoService {
	hash := sha256.Sum256([]byte(secret))
	return &CryptoService{key: hash[:]}
}

func (c *CryptoService) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptBytes returns nonce || ciphertext.
func (c *CryptoService) EncryptBytes(plaintext []byte) ([]byte, error) {
	gcm, err := c.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptBytes opens data produced by EncryptBytes.
func (c *CryptoService) DecryptBytes(data []byte) ([]byte, error) {
	gcm, err := c.aead()
	if err != nil {
		return nil, err
	}

	n := gcm.NonceSize()
	if len(data) < n {
		return nil, errSealedTooShort
	}
	return gcm.Open(nil, data[:n], data[n:], nil)
}
