package s3

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Bucket: "b"})
	require.Error(t, err)
	_, err = New(Config{Endpoint: "localhost:9000"})
	require.Error(t, err)

	store, err := New(Config{Endpoint: "localhost:9000", Bucket: "evidence", Prefix: "runs"})
	require.NoError(t, err)
	assert.Equal(t, "runs/phb/A - inversor 2.png", store.ObjectName("phb/A - inversor 2.png"))

	_, err = store.PutObject(context.Background(), "", "image/png", strings.NewReader("x"))
	require.Error(t, err)
}
