package stores

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/minio/minio-go/v7"
	miniocredentials "github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore uploads prediction images to an object storage bucket.
// Each upload gets a fresh download token, kept in object metadata and
// echoed in the returned URL; the token's value means nothing to this
// system beyond enabling public reads.
type MinioStore struct {
	mc            *minio.Client
	bucket        string
	publicBaseURL string
}

func NewMinioStore(endpoint, accessKey, secretKey, bucket, publicBaseURL string) (*MinioStore, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocredentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{
		mc:            mc,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

func (s *MinioStore) Upload(ctx context.Context, data []byte, objectPath string) (string, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return "", &StorageError{Op: "upload", Err: err}
	}

	_, err = s.mc.PutObject(ctx, s.bucket, objectPath, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  "image/jpeg",
			UserMetadata: map[string]string{"download-token": token.String()},
		})
	if err != nil {
		return "", &StorageError{Op: "upload", Err: err}
	}

	return publicURL(s.publicBaseURL, s.bucket, objectPath, token.String()), nil
}

func (s *MinioStore) Delete(ctx context.Context, objectPath string) error {
	err := s.mc.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{})
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// publicURL builds the stable download URL for an uploaded object. The
// object path is fully percent-encoded so it occupies one URL path
// segment.
func publicURL(base, bucket, objectPath, token string) string {
	return fmt.Sprintf("%s/%s/%s?alt=media&token=%s",
		base, bucket, url.PathEscape(objectPath), token)
}
