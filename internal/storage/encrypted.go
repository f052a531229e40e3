package storage

import "context"

// Cipher seals and opens blobs.
type Cipher interface {
	EncryptBytes(plaintext []byte) ([]byte, error)
	DecryptBytes(ciphertext []byte) ([]byte, error)
}

// Encrypted wraps a Store and encrypts every object at rest.
type Encrypted struct {
	Store
	cipher Cipher
}

func NewEncrypted(store Store, cipher Cipher) *Encrypted {
	return &Encrypted{Store: store, cipher: cipher}
}

func (e *Encrypted) Put(ctx context.Context, key string, data []byte, contentType string) error {
	sealed, err := e.cipher.EncryptBytes(data)
	if err != nil {
		return err
	}
	return e.Store.Put(ctx, key, sealed, "application/octet-stream")
}

func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.cipher.DecryptBytes(sealed)
}
