package publish

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport answers every request with 200 and keeps PUT bodies
// keyed by URL path.
type recordingTransport struct {
	mu   sync.Mutex
	puts map[string]string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPut {
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
		}
		rt.mu.Lock()
		if rt.puts == nil {
			rt.puts = map[string]string{}
		}
		rt.puts[req.URL.Path] = string(body)
		rt.mu.Unlock()
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    req,
	}, nil
}

func TestFilePublisher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "export.json")
	p := &FilePublisher{Path: path}

	loc, err := p.Publish(context.Background(), strings.NewReader(`{"nodes":[]}`))
	require.NoError(t, err)
	assert.Equal(t, path, loc)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"nodes":[]}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

func TestFilePublisher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&FilePublisher{Path: filepath.Join(t.TempDir(), "x.json")}).Publish(ctx, strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3Publisher(t *testing.T) {
	rt := &recordingTransport{}
	p, err := NewS3(context.Background(), S3Config{
		Region:          "us-east-1",
		Bucket:          "graphs",
		Key:             "reactome/export.json",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: rt},
	})
	require.NoError(t, err)

	// A plain io.Reader is buffered before upload.
	loc, err := p.Publish(context.Background(), io.MultiReader(strings.NewReader(`{"nodes":`), strings.NewReader(`[]}`)))
	require.NoError(t, err)
	assert.Equal(t, "s3://graphs/reactome/export.json", loc)

	body, ok := rt.puts["/graphs/reactome/export.json"]
	require.True(t, ok, "path style PUT recorded: %v", rt.puts)
	assert.Contains(t, body, `{"nodes":[]}`)
}

func TestNewS3_Validation(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Key: "k"})
	assert.Error(t, err)
	_, err = NewS3(context.Background(), S3Config{Bucket: "b"})
	assert.Error(t, err)
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://b/k.json", "b", "k.json", true},
		{"s3://b/dir/k.json", "b", "dir/k.json", true},
		{"s3://b", "", "", false},
		{"s3:///k", "", "", false},
		{"/tmp/k.json", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			bucket, key, ok := ParseS3URL(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestForTarget(t *testing.T) {
	ctx := context.Background()

	p, err := ForTarget(ctx, "/tmp/out.json", S3Config{})
	require.NoError(t, err)
	assert.IsType(t, &FilePublisher{}, p)

	p, err = ForTarget(ctx, "s3://bucket/out.json", S3Config{AccessKeyID: "a", SecretAccessKey: "b"})
	require.NoError(t, err)
	s3p, ok := p.(*S3Publisher)
	require.True(t, ok)
	assert.Equal(t, "bucket", s3p.bucket)
	assert.Equal(t, "out.json", s3p.key)

	_, err = ForTarget(ctx, "s3://bucket", S3Config{})
	assert.Error(t, err)
	_, err = ForTarget(ctx, "", S3Config{})
	assert.Error(t, err)
}
