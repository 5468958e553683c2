package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/RAG-HealthBot/pkg/errors"
)

func TestUploadKey(t *testing.T) {
	cases := map[string]string{
		"labs.pdf":              "uploads/j1/labs.pdf",
		"scans/2024/labs.pdf":   "uploads/j1/labs.pdf",
		`C:\Users\me\labs.pdf`: "uploads/j1/labs.pdf",
		"":                      "uploads/j1/upload",
		"/":                     "uploads/j1/upload",
	}
	for in, want := range cases {
		assert.Equal(t, want, UploadKey("j1", in), in)
	}
}

type UploadStoreTestSuite struct {
	suite.Suite
	api   *MockObjectAPI
	store *UploadStore
}

func (s *UploadStoreTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	client := NewClientWithAPI(s.api, "b", "", logging.NewNopLogger())
	s.store = NewUploadStore(client, logging.NewNopLogger())
}

func (s *UploadStoreTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func (s *UploadStoreTestSuite) TestPut() {
	s.api.On("PutObject", mock.Anything, "b", "uploads/j1/labs.pdf", mock.Anything, int64(5),
		mock.MatchedBy(func(o minio.PutObjectOptions) bool {
			return o.ContentType == "application/pdf" && o.UserMetadata["job-id"] == "j1"
		})).
		Return(minio.UploadInfo{Key: "uploads/j1/labs.pdf"}, nil)

	key, err := s.store.Put(context.Background(), "j1", "labs.pdf", "application/pdf", []byte("%PDF-"))
	s.NoError(err)
	s.Equal("uploads/j1/labs.pdf", key)
}

func (s *UploadStoreTestSuite) TestPut_DefaultContentTypeAndError() {
	s.api.On("PutObject", mock.Anything, "b", "uploads/j1/x", mock.Anything, int64(1),
		mock.MatchedBy(func(o minio.PutObjectOptions) bool { return o.ContentType == "application/octet-stream" })).
		Return(minio.UploadInfo{}, errors.New("503"))

	_, err := s.store.Put(context.Background(), "j1", "x", "", []byte("x"))
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStorageError))

	_, err = s.store.Put(context.Background(), "", "x", "", nil)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func (s *UploadStoreTestSuite) TestGet() {
	s.api.On("GetObject", mock.Anything, "b", "uploads/j1/labs.pdf", mock.Anything).
		Return(io.NopCloser(bytes.NewReader([]byte("content"))), nil)

	data, err := s.store.Get(context.Background(), "uploads/j1/labs.pdf")
	s.NoError(err)
	s.Equal("content", string(data))
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }
func (failingReader) Close() error               { return nil }

func (s *UploadStoreTestSuite) TestGet_NotFoundOnRead() {
	s.api.On("GetObject", mock.Anything, "b", "missing", mock.Anything).
		Return(failingReader{err: minio.ErrorResponse{Code: "NoSuchKey"}}, nil)

	_, err := s.store.Get(context.Background(), "missing")
	s.True(apperrors.IsNotFound(err))
}

func (s *UploadStoreTestSuite) TestGet_Error() {
	s.api.On("GetObject", mock.Anything, "b", "k", mock.Anything).Return(nil, errors.New("boom"))
	_, err := s.store.Get(context.Background(), "k")
	s.True(apperrors.IsCode(err, apperrors.ErrCodeStorageError))
}

func (s *UploadStoreTestSuite) TestExists() {
	s.api.On("StatObject", mock.Anything, "b", "k1", mock.Anything).Return(minio.ObjectInfo{Key: "k1"}, nil)
	s.api.On("StatObject", mock.Anything, "b", "k2", mock.Anything).Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})

	ok, err := s.store.Exists(context.Background(), "k1")
	s.NoError(err)
	s.True(ok)
	ok, err = s.store.Exists(context.Background(), "k2")
	s.NoError(err)
	s.False(ok)
}

func (s *UploadStoreTestSuite) TestDeleteJob() {
	ch := make(chan minio.ObjectInfo, 2)
	ch <- minio.ObjectInfo{Key: "uploads/j1/a.pdf"}
	ch <- minio.ObjectInfo{Key: "uploads/j1/b.png"}
	close(ch)
	s.api.On("ListObjects", mock.Anything, "b", minio.ListObjectsOptions{Prefix: "uploads/j1/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))
	s.api.On("RemoveObject", mock.Anything, "b", "uploads/j1/a.pdf", mock.Anything).Return(nil)
	s.api.On("RemoveObject", mock.Anything, "b", "uploads/j1/b.png", mock.Anything).Return(nil)

	s.NoError(s.store.DeleteJob(context.Background(), "j1"))
}

func TestUploadStoreSuite(t *testing.T) {
	suite.Run(t, new(UploadStoreTestSuite))
}
