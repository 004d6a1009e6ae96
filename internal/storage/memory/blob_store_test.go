package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "shots/t1/abc.png", "image/png", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://shots/t1/abc.png", uri)

	payload[0] = 'C'
	stored, ok := store.Object("shots/t1/abc.png")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
}
