package objectstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"meteorgrid/internal/persistence"
	"meteorgrid/internal/stream"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/atomic"
)

const defaultProbeInterval = 5 * time.Second

type Options struct {
	Endpoint      string
	Bucket        string
	Prefix        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	ProbeInterval time.Duration
}

// Store keeps one object per key in a MinIO or S3 compatible bucket.
// Availability is refreshed by a background probe so IsAvailable never blocks.
type Store[K comparable, V any] struct {
	client     *minio.Client
	bucket     string
	prefix     string
	interval   time.Duration
	marshaller persistence.Marshaller

	available atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New[K comparable, V any](opts Options) (*Store[K, V], error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return NewWithClient[K, V](client, opts.Bucket, opts.Prefix, opts.ProbeInterval), nil
}

func NewWithClient[K comparable, V any](client *minio.Client, bucket, prefix string, probeInterval time.Duration) *Store[K, V] {
	if probeInterval <= 0 {
		probeInterval = defaultProbeInterval
	}
	return &Store[K, V]{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		interval:   probeInterval,
		marshaller: persistence.JSONMarshaller{},
	}
}

// Start creates the bucket when missing and starts the availability probe.
func (s *Store[K, V]) Start(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
		}
	}
	s.available.Store(true)

	probeCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.probe(probeCtx)
	return nil
}

func (s *Store[K, V]) probe(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, s.interval)
			_, err := s.client.BucketExists(checkCtx, s.bucket)
			cancel()
			if was := s.available.Swap(err == nil); was != (err == nil) {
				slog.Warn("Object store availability changed", "bucket", s.bucket, "available", err == nil, "error", err)
			}
		}
	}
}

func (s *Store[K, V]) Stop() error {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
	}
	return nil
}

// Destroy removes every object under the prefix and stops the store.
func (s *Store[K, V]) Destroy() error {
	ctx := context.Background()
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true})
	for e := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if e.Err != nil {
			return e.Err
		}
	}
	return s.Stop()
}

func (s *Store[K, V]) IsAvailable() bool {
	return s.available.Load()
}

func (s *Store[K, V]) objectName(key K) (string, error) {
	encoded, err := persistence.EncodeKey(s.marshaller, key)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, hex.EncodeToString([]byte(encoded))), nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (s *Store[K, V]) read(ctx context.Context, name string) (*persistence.MarshalledEntry[K, V], error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	e, err := persistence.DecodeEntry[K, V](s.marshaller, data)
	if err != nil {
		return nil, err
	}
	if e.Metadata.IsExpired(time.Now()) {
		return nil, nil
	}
	return &e, nil
}

func (s *Store[K, V]) Load(ctx context.Context, key K) (*persistence.MarshalledEntry[K, V], error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, name)
}

func (s *Store[K, V]) Contains(ctx context.Context, key K) (bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store[K, V]) Write(ctx context.Context, entry persistence.MarshalledEntry[K, V]) error {
	name, err := s.objectName(entry.Key)
	if err != nil {
		return err
	}
	data, err := persistence.EncodeEntry(s.marshaller, entry)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (s *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	existed, err := s.Contains(ctx, key)
	if err != nil || !existed {
		return false, err
	}
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
		return false, err
	}
	return true, nil
}

// Entries lists the prefix and fetches objects as they are pulled.
func (s *Store[K, V]) Entries(ctx context.Context) stream.Iterator[persistence.MarshalledEntry[K, V]] {
	listCtx, cancel := context.WithCancel(ctx)
	objects := s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true})
	return stream.Func(func() (persistence.MarshalledEntry[K, V], bool, error) {
		for obj := range objects {
			if obj.Err != nil {
				return persistence.MarshalledEntry[K, V]{}, false, obj.Err
			}
			e, err := s.read(listCtx, obj.Key)
			if err != nil {
				return persistence.MarshalledEntry[K, V]{}, false, err
			}
			if e != nil {
				return *e, true, nil
			}
		}
		return persistence.MarshalledEntry[K, V]{}, false, nil
	}, func() error {
		cancel()
		return nil
	})
}
