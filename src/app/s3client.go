package app

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ClientMinio is the subset of *minio.Client the object store uses.
type ClientMinio interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expires time.Duration) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (info minio.UploadInfo, err error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type MinioS3Client struct {
	endpoint   string
	bucketName string
	expiry     time.Duration
	client     ClientMinio
	log        logrus.FieldLogger
}

const defaultContentType = "application/octet-stream"

// NewMinioS3Client creates a new MinioS3Client instance. Presigned URLs are
// valid for expiry.
func NewMinioS3Client(endpoint, accessKeyID, secretAccessKey, bucketName string, useSSL bool, expiry time.Duration, log logrus.FieldLogger) (*MinioS3Client, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		log.WithError(err).WithField("endpoint", endpoint).Error("can not create minio client")
		return nil, errors.Wrap(err, "create minio client")
	}
	return newMinioS3Client(minioClient, endpoint, bucketName, expiry, log), nil
}

func newMinioS3Client(client ClientMinio, endpoint, bucketName string, expiry time.Duration, log logrus.FieldLogger) *MinioS3Client {
	return &MinioS3Client{
		endpoint:   endpoint,
		bucketName: bucketName,
		expiry:     expiry,
		client:     client,
		log:        log.WithField("bucket", bucketName),
	}
}

// PresignedPutURL returns a URL the client can PUT the object bytes to.
func (s3 *MinioS3Client) PresignedPutURL(ctx context.Context, key string) (string, error) {
	u, err := s3.client.PresignedPutObject(ctx, s3.bucketName, key, s3.expiry)
	if err != nil {
		return "", errors.Wrapf(err, "presign put %s", key)
	}
	return u.String(), nil
}

// PresignedGetURL returns a download URL for key.
func (s3 *MinioS3Client) PresignedGetURL(ctx context.Context, key string) (string, error) {
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("inline; filename=%q", path.Base(key)))
	u, err := s3.client.PresignedGetObject(ctx, s3.bucketName, key, s3.expiry, reqParams)
	if err != nil {
		return "", errors.Wrapf(err, "presign get %s", key)
	}
	return u.String(), nil
}

// UploadFile stores size bytes read from object under key.
func (s3 *MinioS3Client) UploadFile(ctx context.Context, key string, object io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = defaultContentType
	}
	_, err := s3.client.PutObject(ctx, s3.bucketName, key, object, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

// GetFile opens key for reading. The caller closes the reader.
func (s3 *MinioS3Client) GetFile(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s3.client.GetObject(ctx, s3.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return obj, nil
}

func (s3 *MinioS3Client) DeleteFile(ctx context.Context, key string) error {
	s3.log.WithField("key", key).Debug("remove object")
	if err := s3.client.RemoveObject(ctx, s3.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "remove %s", key)
	}
	return nil
}
