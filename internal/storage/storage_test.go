package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/tfhe"
)

func backends(t *testing.T) map[string]Storage {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return map[string]Storage{
		"memory": NewMemoryStorage(1),
		"file":   fs,
	}
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			h, err := s.Store(ctx, []byte("blob"))
			require.NoError(t, err)
			require.NoError(t, h.Validate())
			require.Equal(t, ComputeHandle([]byte("blob")), h)

			again, err := s.Store(ctx, []byte("blob"))
			require.NoError(t, err)
			require.Equal(t, h, again)

			data, err := s.Load(ctx, h)
			require.NoError(t, err)
			require.Equal(t, []byte("blob"), data)

			ok, err := s.Exists(ctx, h)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, s.Delete(ctx, h))
			_, err = s.Load(ctx, h)
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, s.Delete(ctx, h), ErrNotFound)

			ok, err = s.Exists(ctx, h)
			require.NoError(t, err)
			require.False(t, ok)
			require.NoError(t, s.Close())
		})
	}
}

func TestMemoryStorageCapacity(t *testing.T) {
	s := NewMemoryStorage(1)
	_, err := s.Store(context.Background(), make([]byte, 1<<20+1))
	require.ErrorIs(t, err, ErrStorageFull)
}

func TestFileStorageRejectsBadHandles(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	for _, h := range []Handle{"", "../../etc/passwd", Handle(make([]byte, 64))} {
		_, err := s.Load(context.Background(), h)
		require.ErrorIs(t, err, ErrInvalidHandle, "%q", h)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, s := range backends(t) {
		_, err := s.Store(ctx, []byte("x"))
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestCiphertextHelpers(t *testing.T) {
	ctx := context.Background()
	ck, err := tfhe.NewClientKeyFromSeed(tfhe.MustParameters(tfhe.ToyParameters), []byte("storage"))
	require.NoError(t, err)
	bits := []bool{true, false, true}
	cts := append(ck.EncryptSlice(bits), tfhe.NewTrivialCiphertext(true))
	bits = append(bits, true)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			handles, err := StoreCiphertexts(ctx, s, cts)
			require.NoError(t, err)
			require.Len(t, handles, len(cts))

			got, err := LoadCiphertexts(ctx, s, handles)
			require.NoError(t, err)
			require.Equal(t, bits, ck.DecryptSlice(got))

			bad, err := s.Store(ctx, []byte{9})
			require.NoError(t, err)
			_, err = LoadCiphertexts(ctx, s, []Handle{handles[0], bad})
			require.Error(t, err)
		})
	}
}
