package proofs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	putCalls []putCall
	err      error
}

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{
		bucket:      *input.Bucket,
		key:         *input.Key,
		contentType: *input.ContentType,
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func fixedClock() time.Time {
	return time.UnixMilli(1700000000123)
}

func TestArchiver_Archive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	mock := &mockS3Client{}
	a := NewArchiver(mock, "proof-bucket", nil, WithClock(fixedClock))

	key, err := a.Archive(context.Background(), "psid_1", srv.URL+"/proof")
	require.NoError(t, err)
	assert.Equal(t, "proofs/psid_1/1700000000123.png", key)

	require.Len(t, mock.putCalls, 1)
	call := mock.putCalls[0]
	assert.Equal(t, "proof-bucket", call.bucket)
	assert.Equal(t, key, call.key)
	assert.Equal(t, "image/png", call.contentType)
	assert.Equal(t, "png-bytes", string(call.body))
}

func TestArchiver_Disabled(t *testing.T) {
	a := NewArchiver(&mockS3Client{}, "", nil)
	assert.False(t, a.Enabled())
	_, err := a.Archive(context.Background(), "psid", "https://cdn.example/x.jpg")
	assert.Error(t, err)

	var nilArchiver *Archiver
	assert.False(t, nilArchiver.Enabled())
}

func TestArchiver_DownloadFailures(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer notFound.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	mock := &mockS3Client{}
	a := NewArchiver(mock, "proof-bucket", nil, WithDownloadTimeout(20*time.Millisecond))

	_, err := a.Archive(context.Background(), "psid", notFound.URL)
	assert.ErrorContains(t, err, "status 404")

	_, err = a.Archive(context.Background(), "psid", slow.URL)
	assert.Error(t, err)

	_, err = a.Archive(context.Background(), "psid", "ftp://example.com/proof.jpg")
	assert.ErrorContains(t, err, "invalid proof url")

	assert.Empty(t, mock.putCalls)
}

func TestArchiver_PutFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	boom := errors.New("access denied")
	a := NewArchiver(&mockS3Client{err: boom}, "proof-bucket", nil)
	_, err := a.Archive(context.Background(), "psid", srv.URL+"/p.jpg")
	assert.ErrorIs(t, err, boom)
}

func TestExtension(t *testing.T) {
	tests := []struct {
		contentType, path, want string
	}{
		{"image/jpeg", "/x", "jpg"},
		{"image/webp; charset=binary", "/x", "webp"},
		{"", "/scontent/abc.PNG", "png"},
		{"application/octet-stream", "/abc.jpeg", "jpg"},
		{"", "/abc", "jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extension(tt.contentType, tt.path), "%s %s", tt.contentType, tt.path)
	}
}

func TestSafeSegment(t *testing.T) {
	assert.Equal(t, "a_b_c-1", safeSegment("a/b.c-1"))
}
