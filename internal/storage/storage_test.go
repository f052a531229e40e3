package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenshotKey(t *testing.T) {
	at := time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("WIB", 7*3600))

	key := ScreenshotKey("LAPTOP 01/../x", at, `C:\shots\screen.PNG`)
	parts := strings.Split(key, "/")
	require.Len(t, parts, 5)
	assert.Equal(t, "LAPTOP_01_.._x", parts[0])
	assert.Equal(t, []string{"2024", "05", "01"}, parts[1:4], "dates are UTC")
	assert.True(t, strings.HasSuffix(parts[4], ".png"))

	assert.True(t, strings.HasSuffix(ScreenshotKey("m", at, ""), ".jpg"))
	assert.True(t, strings.HasPrefix(ScreenshotKey("..", at, "a.jpg"), "unknown/"))
	assert.NoError(t, validKey(key))
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "m/2024/05/01/a.jpg", []byte("one"), "image/jpeg"))
	require.NoError(t, store.Put(ctx, "m/2024/05/01/a.jpg", []byte("two"), "image/jpeg"))

	data, err := store.Get(ctx, "m/2024/05/01/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, store.Delete(ctx, "m/2024/05/01/a.jpg"))
	require.NoError(t, store.Delete(ctx, "m/2024/05/01/a.jpg"), "deleting twice is fine")

	_, err = store.Get(ctx, "m/2024/05/01/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, bad := range []string{"", "/etc/passwd", `m\a.jpg`, "../outside"} {
		assert.Error(t, store.Put(ctx, bad, []byte("x"), ""), bad)
	}
}

// xorCipher is a reversible stand-in for the AES cipher.
type xorCipher struct{ fail bool }

func (c xorCipher) EncryptBytes(p []byte) ([]byte, error) { return xor(p), nil }

func (c xorCipher) DecryptBytes(p []byte) ([]byte, error) {
	if c.fail {
		return nil, errors.New("bad key")
	}
	return xor(p), nil
}

func xor(p []byte) []byte {
	out := bytes.Clone(p)
	for i := range out {
		out[i] ^= 0x5a
	}
	return out
}

func TestEncryptedStore(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	store := NewEncrypted(local, xorCipher{})
	require.NoError(t, store.Put(ctx, "k.jpg", []byte("secret"), "image/jpeg"))

	raw, err := local.Get(ctx, "k.jpg")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", string(raw))

	data, err := store.Get(ctx, "k.jpg")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(data))

	_, err = NewEncrypted(local, xorCipher{fail: true}).Get(ctx, "k.jpg")
	assert.Error(t, err)

	_, err = store.Get(ctx, "missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "k.jpg"))
	_, err = local.Get(ctx, "k.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}
