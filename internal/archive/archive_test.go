package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/rwavault/internal/config"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "assets/abc", ObjectKey("abc"))
}

func TestPresignURLIsOffline(t *testing.T) {
	store, err := New(&config.Config{
		S3Endpoint:    "localhost:9000",
		S3AccessKey:   "minio",
		S3SecretKey:   "minio123",
		S3Region:      "us-east-1",
		ArchiveBucket: "rwa-assets",
	})
	require.NoError(t, err)

	u, err := store.PresignURL(context.Background(), "deadbeef", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/rwa-assets/assets/deadbeef?"), u)
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=300")
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New(&config.Config{S3Endpoint: "http://localhost:9000"})
	require.Error(t, err)
}
