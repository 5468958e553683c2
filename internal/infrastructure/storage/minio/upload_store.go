package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// UploadPrefix is the key prefix for archived uploads.
const UploadPrefix = "uploads/"

// ErrObjectNotFound is returned when a key does not exist.
var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

// UploadStore archives the raw bytes of submitted files so workers can fetch
// them by key.
type UploadStore struct {
	client *Client
	logger logging.Logger
}

// NewUploadStore returns a store over client's bucket.
func NewUploadStore(client *Client, log logging.Logger) *UploadStore {
	return &UploadStore{client: client, logger: log}
}

// UploadKey returns uploads/<job_id>/<base name>. Directory parts of the
// file name are dropped.
func UploadKey(jobID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return UploadPrefix + jobID + "/" + name
}

// Put stores data under UploadKey(jobID, fileName) and returns the key.
func (s *UploadStore) Put(ctx context.Context, jobID, fileName, contentType string, data []byte) (string, error) {
	if jobID == "" {
		return "", errors.New(errors.ErrCodeValidation, "job id required")
	}
	if err := s.client.checkOpen(); err != nil {
		return "", err
	}
	key := UploadKey(jobID, fileName)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.api.PutObject(ctx, s.client.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: map[string]string{"file-name": fileName, "job-id": jobID},
		})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload object").WithDetail(key)
	}
	s.logger.Debug("upload archived", logging.String("key", key), logging.Int("bytes", len(data)))
	return key, nil
}

// Get reads the whole object at key.
func (s *UploadStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.client.checkOpen(); err != nil {
		return nil, err
	}
	obj, err := s.client.api.GetObject(ctx, s.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapObjectError(err, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapObjectError(err, key)
	}
	return data, nil
}

// Exists reports whether key is present.
func (s *UploadStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.client.checkOpen(); err != nil {
		return false, err
	}
	if _, err := s.client.api.StatObject(ctx, s.client.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat object").WithDetail(key)
	}
	return true, nil
}

// DeleteJob removes every object archived for jobID.
func (s *UploadStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.client.checkOpen(); err != nil {
		return err
	}
	prefix := UploadPrefix + jobID + "/"
	for obj := range s.client.api.ListObjects(ctx, s.client.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return errors.Wrap(obj.Err, errors.ErrCodeStorageError, "failed to list objects").WithDetail(prefix)
		}
		if err := s.client.api.RemoveObject(ctx, s.client.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to remove object").WithDetail(obj.Key)
		}
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func mapObjectError(err error, key string) error {
	if isNoSuchKey(err) {
		return ErrObjectNotFound.WithDetail(key)
	}
	return errors.Wrap(err, errors.ErrCodeStorageError, "failed to read object").WithDetail(key)
}
