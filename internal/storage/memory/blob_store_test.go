package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreKeepsCopy(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("png")
	uri, err := store.PutObject(context.Background(), "solis/A - gráfico.png", "image/png", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://solis/A - gráfico.png", uri)

	payload[0] = 'P'
	got, ok := store.Object("solis/A - gráfico.png")
	require.True(t, ok)
	assert.Equal(t, "png", string(got))
	assert.Equal(t, []string{"solis/A - gráfico.png"}, store.Paths())
}

func TestBlobStoreFailWith(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	boom := errors.New("bucket gone")
	store.FailWith(boom)
	_, err := store.PutObject(context.Background(), "x", "", bytes.NewReader(nil))
	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.Paths())
}
