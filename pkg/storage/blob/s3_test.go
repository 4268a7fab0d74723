package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/catalog/pkg/catalog"
)

// fakeS3 keeps objects in memory and reports errors the way the SDK does
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	bucket   bool
	puts     int
	headErr  error
	createFn func() error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.createFn != nil {
		if err := f.createFn(); err != nil {
			return nil, err
		}
	}
	f.bucket = true
	return &s3.CreateBucketOutput{}, nil
}

func TestS3Store_PutDeduplicates(t *testing.T) {
	fake := newFakeS3()
	s := NewS3StoreWithClient(fake, "specs")
	ctx := context.Background()

	content := []byte(`{"openapi":"3.0.0"}`)
	hash, err := s.Put(ctx, content, "application/json")
	require.NoError(t, err)
	assert.Contains(t, fake.objects, "specifications/sha256/"+hash[:2]+"/"+hash[2:])

	_, err = s.Put(ctx, content, "application/json")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.puts)

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestS3Store_NotFound(t *testing.T) {
	s := NewS3StoreWithClient(newFakeS3(), "specs")
	ctx := context.Background()
	hash := Hash([]byte("absent"))

	_, err := s.Get(ctx, hash)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	ok, err := s.Exists(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Store_HeadFailureAbortsPut(t *testing.T) {
	fake := newFakeS3()
	fake.headErr = errors.New("access denied")
	s := NewS3StoreWithClient(fake, "specs")

	_, err := s.Put(context.Background(), []byte("x"), "text/plain")
	assert.Error(t, err)
	assert.Equal(t, 0, fake.puts)
}

func TestS3Store_EnsureBucket(t *testing.T) {
	t.Run("creates missing bucket", func(t *testing.T) {
		fake := newFakeS3()
		s := NewS3StoreWithClient(fake, "specs")
		require.NoError(t, s.ensureBucket(context.Background()))
		assert.True(t, fake.bucket)
		assert.NoError(t, s.HealthCheck(context.Background()))
	})

	t.Run("tolerates concurrent creation", func(t *testing.T) {
		fake := newFakeS3()
		fake.createFn = func() error { return &types.BucketAlreadyOwnedByYou{} }
		s := NewS3StoreWithClient(fake, "specs")
		assert.NoError(t, s.ensureBucket(context.Background()))
	})

	t.Run("reports other failures", func(t *testing.T) {
		fake := newFakeS3()
		fake.createFn = func() error { return errors.New("forbidden") }
		s := NewS3StoreWithClient(fake, "specs")
		assert.Error(t, s.ensureBucket(context.Background()))
		assert.Error(t, s.HealthCheck(context.Background()))
	})
}
