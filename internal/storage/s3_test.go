package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/config"
)

func newTestStore(publicBaseURL string) *S3ImageStore {
	client := s3.New(s3.Options{
		Region:       "eu-west-3",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})
	return NewS3ImageStoreWithClient(client, config.S3Config{
		Bucket:        "camperwash-images",
		Region:        "eu-west-3",
		PublicBaseURL: publicBaseURL,
	})
}

func TestS3ImageStore_PresignUpload(t *testing.T) {
	store := newTestStore("https://cdn.camperwash.fr/")

	upload, err := store.PresignUpload(context.Background(), "image/JPEG")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(upload.Key, "stations/"))
	assert.True(t, strings.HasSuffix(upload.Key, ".jpg"))
	assert.Equal(t, "https://cdn.camperwash.fr/"+upload.Key, upload.ImageURL)
	assert.Equal(t, "PUT", upload.Method)

	u, err := url.Parse(upload.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/camperwash-images/"+upload.Key, u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestS3ImageStore_UniqueKeys(t *testing.T) {
	store := newTestStore("")

	a, err := store.PresignUpload(context.Background(), "image/png")
	require.NoError(t, err)
	b, err := store.PresignUpload(context.Background(), "image/png")
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, "https://camperwash-images.s3.eu-west-3.amazonaws.com/"+a.Key, a.ImageURL)
}

func TestS3ImageStore_RejectsContentType(t *testing.T) {
	store := newTestStore("")

	for _, ct := range []string{"image/gif", "application/pdf", ""} {
		_, err := store.PresignUpload(context.Background(), ct)
		assert.True(t, apperr.Is(err, apperr.TypeValidation), ct)
	}
}
