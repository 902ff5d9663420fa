package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "test-signing-secret", 15*time.Minute, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestLocalStore_PutGetRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Put(ctx, "org-1/invoices/receipt.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)

	data, err := store.Get(ctx, "org-1/invoices/receipt.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))
}

func TestLocalStore_PutOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a/b.txt", strings.NewReader("first")))
	require.NoError(t, store.Put(ctx, "a/b.txt", strings.NewReader("second")))

	data, err := store.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "no/such/key.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "gone.txt", strings.NewReader("x")))
	require.NoError(t, store.Delete(ctx, "gone.txt"))

	_, err := store.Get(ctx, "gone.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting a missing key is not an error
	assert.NoError(t, store.Delete(ctx, "gone.txt"))
}

func TestLocalStore_RejectsUnsafeKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../outside.txt", "a/../../etc/passwd", "/etc/passwd"} {
		t.Run(key, func(t *testing.T) {
			err := store.Put(ctx, key, strings.NewReader("x"))
			assert.ErrorIs(t, err, ErrInvalidKey)

			_, err = store.Get(ctx, key)
			assert.ErrorIs(t, err, ErrInvalidKey)

			_, err = store.SignDownloadURL(key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestLocalStore_SignedURLRoundtrip(t *testing.T) {
	store := newTestStore(t)

	signed, err := store.SignDownloadURL("org-1/receipt.pdf")
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/api/files/org-1%2Freceipt.pdf", u.EscapedPath())

	q := u.Query()
	err = store.VerifySignature("org-1/receipt.pdf", q.Get("expires"), q.Get("sig"))
	assert.NoError(t, err)
}

func TestLocalStore_VerifySignature(t *testing.T) {
	store := newTestStore(t)
	store.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	signed, err := store.SignDownloadURL("org-1/receipt.pdf")
	require.NoError(t, err)
	q := mustQuery(t, signed)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, store.VerifySignature("org-1/receipt.pdf", q.Get("expires"), q.Get("sig")))
	})

	t.Run("expired", func(t *testing.T) {
		late := *store
		late.now = func() time.Time { return time.Date(2026, 3, 10, 12, 16, 0, 0, time.UTC) }
		assert.ErrorIs(t, late.VerifySignature("org-1/receipt.pdf", q.Get("expires"), q.Get("sig")), ErrBadSignature)
	})

	t.Run("tampered signature", func(t *testing.T) {
		assert.ErrorIs(t, store.VerifySignature("org-1/receipt.pdf", q.Get("expires"), q.Get("sig")+"00"), ErrBadSignature)
	})

	t.Run("different key", func(t *testing.T) {
		assert.ErrorIs(t, store.VerifySignature("org-2/receipt.pdf", q.Get("expires"), q.Get("sig")), ErrBadSignature)
	})

	t.Run("tampered expiry", func(t *testing.T) {
		assert.ErrorIs(t, store.VerifySignature("org-1/receipt.pdf", "9999999999", q.Get("sig")), ErrBadSignature)
	})

	t.Run("non-numeric expiry", func(t *testing.T) {
		assert.ErrorIs(t, store.VerifySignature("org-1/receipt.pdf", "soon", q.Get("sig")), ErrBadSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := newTestStore(t)
		assert.ErrorIs(t, other.VerifySignature("org-1/receipt.pdf", q.Get("expires"), q.Get("sig")), ErrBadSignature)
	})
}

func mustQuery(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query()
}
