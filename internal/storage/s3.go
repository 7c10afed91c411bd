package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/config"
)

const (
	uploadExpiry = 15 * time.Minute
	keyPrefix    = "stations/"
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Upload is a presigned direct-to-bucket image upload
type Upload struct {
	UploadURL string    `json:"uploadUrl"`
	Method    string    `json:"method"`
	Key       string    `json:"key"`
	ImageURL  string    `json:"imageUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ImageStore hands out upload URLs for station photos
type ImageStore interface {
	PresignUpload(ctx context.Context, contentType string) (*Upload, error)
}

// S3ImageStore implements ImageStore with S3 presigned PUT URLs.
type S3ImageStore struct {
	presignClient *s3.PresignClient
	bucket        string
	publicBaseURL string
}

// NewS3ImageStore loads the default AWS credential chain and builds the store.
func NewS3ImageStore(ctx context.Context, cfg config.S3Config) (*S3ImageStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3ImageStoreWithClient(client, cfg), nil
}

// NewS3ImageStoreWithClient builds the store around an existing client
func NewS3ImageStoreWithClient(client *s3.Client, cfg config.S3Config) *S3ImageStore {
	publicBaseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3ImageStore{
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		publicBaseURL: publicBaseURL,
	}
}

// PresignUpload returns a PUT URL valid for 15 minutes for a new object key.
// The content type is part of the signature, so the client must send the same header.
func (s *S3ImageStore) PresignUpload(ctx context.Context, contentType string) (*Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, apperr.Validation("type d'image non supporté",
			apperr.FieldError{Field: "contentType", Message: "must be one of image/jpeg, image/png, image/webp"})
	}

	key := keyPrefix + uuid.NewString() + "." + ext
	result, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(uploadExpiry))
	if err != nil {
		return nil, apperr.Transport("failed to presign upload", err)
	}

	return &Upload{
		UploadURL: result.URL,
		Method:    result.Method,
		Key:       key,
		ImageURL:  s.publicBaseURL + "/" + key,
		ExpiresAt: time.Now().UTC().Add(uploadExpiry),
	}, nil
}
