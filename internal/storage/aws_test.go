package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	cacheerr "github.com/nxcache/nxcache/internal/errors"
)

// mockS3Client implements S3API for unit testing. The mutex matters: the
// multipart uploader calls UploadPart from several goroutines.
type mockS3Client struct {
	mu sync.Mutex
	// objects stores all objects keyed by their S3 key.
	objects map[string][]byte
	// multipartUploads tracks active multipart uploads.
	multipartUploads map[string]map[int32][]byte
	// nextUploadID is the counter for generating upload IDs.
	nextUploadID int
	// putObjectCalls tracks the number of PutObject calls for verification.
	putObjectCalls int
	// uploadPartCalls tracks the number of UploadPart calls.
	uploadPartCalls int
	// failListObjects makes ListObjectsV2 fail, for Ping tests.
	failListObjects bool
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{
		objects:          make(map[string][]byte),
		multipartUploads: make(map[string]map[int32][]byte),
	}
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putObjectCalls++
	key := aws.ToString(params.Key)
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := aws.ToString(params.Key)
	data, ok := m.objects[key]
	if !ok {
		return nil, &mockAPIError{code: "NotFound", message: "Not Found", httpStatus: 404}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := aws.ToString(params.Key)
	data, ok := m.objects[key]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchKey", message: "The specified key does not exist.", httpStatus: 404}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failListObjects {
		return nil, &mockAPIError{code: "AccessDenied", message: "Access Denied", httpStatus: 403}
	}
	return &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}, nil
}

func (m *mockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUploadID++
	uploadID := fmt.Sprintf("mock-upload-%d", m.nextUploadID)
	m.multipartUploads[uploadID] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{
		UploadId: aws.String(uploadID),
		Key:      params.Key,
	}, nil
}

func (m *mockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadPartCalls++
	uploadID := aws.ToString(params.UploadId)
	parts, ok := m.multipartUploads[uploadID]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchUpload", message: "No such upload", httpStatus: 404}
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	parts[aws.ToInt32(params.PartNumber)] = data
	etag := fmt.Sprintf(`"part-%d"`, aws.ToInt32(params.PartNumber))
	return &s3.UploadPartOutput{ETag: aws.String(etag)}, nil
}

func (m *mockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uploadID := aws.ToString(params.UploadId)
	parts, ok := m.multipartUploads[uploadID]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchUpload", message: "No such upload", httpStatus: 404}
	}

	var assembled bytes.Buffer
	for _, cp := range params.MultipartUpload.Parts {
		assembled.Write(parts[aws.ToInt32(cp.PartNumber)])
	}
	m.objects[aws.ToString(params.Key)] = assembled.Bytes()
	delete(m.multipartUploads, uploadID)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *mockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.multipartUploads, aws.ToString(params.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

// mockAPIError implements smithy.APIError for the mock client.
type mockAPIError struct {
	code       string
	message    string
	httpStatus int
}

func (e *mockAPIError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *mockAPIError) ErrorCode() string {
	return e.code
}

func (e *mockAPIError) ErrorMessage() string {
	return e.message
}

func (e *mockAPIError) ErrorFault() smithy.ErrorFault {
	if e.httpStatus >= 500 {
		return smithy.FaultServer
	}
	return smithy.FaultClient
}

// Ensure mockAPIError satisfies smithy.APIError.
var _ smithy.APIError = (*mockAPIError)(nil)

// --- Test helpers ---

func newTestS3Backend(t *testing.T) (*S3Backend, *mockS3Client) {
	t.Helper()
	mock := newMockS3Client()
	return NewS3BackendWithClient("test-bucket", 0, mock), mock
}

// --- Tests ---

func TestS3PutKnownSizeUsesSingleRequest(t *testing.T) {
	backend, mock := newTestS3Backend(t)
	ctx := context.Background()

	content := "known-size payload"
	if err := backend.Put(ctx, "ci/abc123", strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if mock.putObjectCalls != 1 {
		t.Errorf("putObjectCalls = %d, want 1", mock.putObjectCalls)
	}
	if mock.uploadPartCalls != 0 {
		t.Errorf("uploadPartCalls = %d, want 0 for a known size", mock.uploadPartCalls)
	}
	if string(mock.objects["ci/abc123"]) != content {
		t.Errorf("stored data = %q, want %q", mock.objects["ci/abc123"], content)
	}
}

func TestS3PutUnknownSizeUsesUploader(t *testing.T) {
	backend, mock := newTestS3Backend(t)
	ctx := context.Background()

	// Larger than one part (5 MiB) so the uploader must go multipart.
	content := bytes.Repeat([]byte("stream-chunk-xyz"), 6<<20/16)
	if err := backend.Put(ctx, "ci/streamed", bytes.NewReader(content), SizeUnknown); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if mock.uploadPartCalls < 2 {
		t.Errorf("uploadPartCalls = %d, want at least 2", mock.uploadPartCalls)
	}
	if !bytes.Equal(mock.objects["ci/streamed"], content) {
		t.Errorf("stored data length = %d, want %d", len(mock.objects["ci/streamed"]), len(content))
	}
}

func TestS3GetRoundTrip(t *testing.T) {
	backend, mock := newTestS3Backend(t)
	ctx := context.Background()

	mock.objects["ci/abc123"] = []byte("cached artifact")

	rc, err := backend.Get(ctx, "ci/abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "cached artifact" {
		t.Errorf("data = %q, want %q", string(data), "cached artifact")
	}
}

func TestS3GetNotFound(t *testing.T) {
	backend, _ := newTestS3Backend(t)

	_, err := backend.Get(context.Background(), "missing")
	if !errors.Is(err, cacheerr.ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestS3Exists(t *testing.T) {
	backend, mock := newTestS3Backend(t)
	ctx := context.Background()

	ok, err := backend.Exists(ctx, "ci/abc123")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("Exists should be false for a missing key")
	}

	mock.objects["ci/abc123"] = []byte("x")

	ok, err = backend.Exists(ctx, "ci/abc123")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !ok {
		t.Error("Exists should be true for a stored key")
	}
}

func TestS3Ping(t *testing.T) {
	backend, mock := newTestS3Backend(t)
	ctx := context.Background()

	if err := backend.Ping(ctx); err != nil {
		t.Errorf("Ping should pass, got: %v", err)
	}

	mock.failListObjects = true
	err := backend.Ping(ctx)
	if !errors.Is(err, cacheerr.ErrBackendUnavailable) {
		t.Fatalf("Ping = %v, want ErrBackendUnavailable", err)
	}
	if !strings.Contains(err.Error(), "test-bucket") {
		t.Errorf("error should name the bucket, got: %v", err)
	}
}

func TestIsAWSNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey code", &mockAPIError{code: "NoSuchKey", httpStatus: 404}, true},
		{"NotFound code", &mockAPIError{code: "NotFound", httpStatus: 404}, true},
		{"wrapped", fmt.Errorf("call failed: %w", &mockAPIError{code: "NoSuchKey", httpStatus: 404}), true},
		{"access denied", &mockAPIError{code: "AccessDenied", httpStatus: 403}, false},
		{"plain error", errors.New("dial tcp: connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAWSNotFound(tt.err); got != tt.want {
				t.Errorf("isAWSNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
