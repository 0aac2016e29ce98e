package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"meteorgrid/internal/common"
	"meteorgrid/internal/persistence"
	"meteorgrid/internal/stream"

	"github.com/dustin/go-humanize"
)

// Store is an append-only log of entry writes and tombstones with an
// in-memory index of the latest row per key. The log is replayed on Start.
type Store[K comparable, V any] struct {
	path        string
	compression Compression
	marshaller  persistence.Marshaller

	m      sync.Mutex
	file   *os.File
	header *header
	lso    int64
	index  map[string]int64
	codec  *codec
	now    func() time.Time
}

func New[K comparable, V any](path string, compression Compression) *Store[K, V] {
	return &Store[K, V]{
		path:        path,
		compression: compression,
		marshaller:  persistence.JSONMarshaller{},
		now:         time.Now,
	}
}

func (s *Store[K, V]) Start(context.Context) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.file != nil {
		return nil
	}

	s.header = &header{
		Version:        formatVersion,
		RowStartOffset: 4 + headerSize, // length prefix + header
		Codec:          uint32(s.compression),
	}

	file, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	if info.Size() > 0 {
		existing := &header{}
		if _, err := common.ReadAtInFile(file, 0, existing); err != nil {
			file.Close()
			return fmt.Errorf("reading header of %s: %w", s.path, err)
		}
		if existing.Version != formatVersion {
			file.Close()
			return fmt.Errorf("unsupported store version %d in %s", existing.Version, s.path)
		}
		// the codec the log was written with wins over the configured one
		s.header = existing
	} else {
		headerBytes, err := s.header.MarshalBinary()
		if err != nil {
			file.Close()
			return err
		}
		if _, err := common.WriteAtInFile(file, 0, headerBytes); err != nil {
			file.Close()
			return err
		}
	}

	c, err := newCodec(Compression(s.header.Codec))
	if err != nil {
		file.Close()
		return err
	}

	s.file = file
	s.codec = c
	s.index = make(map[string]int64)
	return s.replay()
}

// replay rebuilds the index. A torn row at the tail is cut off.
func (s *Store[K, V]) replay() error {
	offset := int64(s.header.RowStartOffset)
	rows := 0
	for {
		r := &row{}
		next, err := common.ReadAtInFile(s.file, offset, r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("replaying %s at offset %d: %w", s.path, offset, err)
		}
		switch r.Op {
		case opWrite:
			s.index[r.Key] = offset
		case opDelete:
			delete(s.index, r.Key)
		}
		offset = next
		rows++
	}
	if err := s.file.Truncate(offset); err != nil {
		return err
	}
	s.lso = offset
	slog.Debug("File store replayed", "path", s.path, "rows", rows, "keys", len(s.index), "size", humanize.Bytes(uint64(offset)))
	return nil
}

func (s *Store[K, V]) Stop() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.codec.close()
	s.file = nil
	return err
}

// Destroy stops the store and removes its file.
func (s *Store[K, V]) Destroy() error {
	if err := s.Stop(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store[K, V]) append(r *row) (int64, error) {
	rowBytes, err := r.MarshalBinary()
	if err != nil {
		return 0, err
	}
	offset := s.lso
	newOffset, err := common.WriteAtInFile(s.file, offset, rowBytes)
	if err != nil {
		return 0, err
	}
	s.lso = newOffset
	return offset, nil
}

func (s *Store[K, V]) Write(_ context.Context, entry persistence.MarshalledEntry[K, V]) error {
	key, err := persistence.EncodeKey(s.marshaller, entry.Key)
	if err != nil {
		return err
	}
	data, err := persistence.EncodeEntry(s.marshaller, entry)
	if err != nil {
		return err
	}

	s.m.Lock()
	defer s.m.Unlock()
	if s.file == nil {
		return persistence.ErrNotStarted
	}
	payload, err := s.codec.compress(data)
	if err != nil {
		return err
	}
	offset, err := s.append(&row{Op: opWrite, Timestamp: s.now().Unix(), Key: key, Payload: payload})
	if err != nil {
		return err
	}
	s.index[key] = offset
	return nil
}

// Delete appends a tombstone when the key is present.
// TODO: compact the log once tombstones and overwritten rows dominate it.
func (s *Store[K, V]) Delete(_ context.Context, key K) (bool, error) {
	encoded, err := persistence.EncodeKey(s.marshaller, key)
	if err != nil {
		return false, err
	}

	s.m.Lock()
	defer s.m.Unlock()
	if s.file == nil {
		return false, persistence.ErrNotStarted
	}
	if _, ok := s.index[encoded]; !ok {
		return false, nil
	}
	if _, err := s.append(&row{Op: opDelete, Timestamp: s.now().Unix(), Key: encoded}); err != nil {
		return false, err
	}
	delete(s.index, encoded)
	return true, nil
}

func (s *Store[K, V]) readAt(offset int64) (*persistence.MarshalledEntry[K, V], error) {
	r := &row{}
	if _, err := common.ReadAtInFile(s.file, offset, r); err != nil {
		return nil, err
	}
	data, err := s.codec.decompress(r.Payload)
	if err != nil {
		return nil, err
	}
	e, err := persistence.DecodeEntry[K, V](s.marshaller, data)
	if err != nil {
		return nil, err
	}
	if e.Metadata.IsExpired(s.now()) {
		return nil, nil
	}
	return &e, nil
}

func (s *Store[K, V]) Load(_ context.Context, key K) (*persistence.MarshalledEntry[K, V], error) {
	encoded, err := persistence.EncodeKey(s.marshaller, key)
	if err != nil {
		return nil, err
	}

	s.m.Lock()
	defer s.m.Unlock()
	if s.file == nil {
		return nil, persistence.ErrNotStarted
	}
	offset, ok := s.index[encoded]
	if !ok {
		return nil, nil
	}
	return s.readAt(offset)
}

func (s *Store[K, V]) Contains(ctx context.Context, key K) (bool, error) {
	e, err := s.Load(ctx, key)
	return e != nil, err
}

// Entries iterates over a snapshot of the live rows.
func (s *Store[K, V]) Entries(ctx context.Context) stream.Iterator[persistence.MarshalledEntry[K, V]] {
	s.m.Lock()
	if s.file == nil {
		s.m.Unlock()
		return stream.Errored[persistence.MarshalledEntry[K, V]](persistence.ErrNotStarted)
	}
	offsets := make([]int64, 0, len(s.index))
	for _, off := range s.index {
		offsets = append(offsets, off)
	}
	s.m.Unlock()

	pos := 0
	return stream.Func(func() (persistence.MarshalledEntry[K, V], bool, error) {
		for pos < len(offsets) {
			if err := ctx.Err(); err != nil {
				return persistence.MarshalledEntry[K, V]{}, false, err
			}
			s.m.Lock()
			var e *persistence.MarshalledEntry[K, V]
			var err error
			if s.file == nil {
				err = persistence.ErrNotStarted
			} else {
				e, err = s.readAt(offsets[pos])
			}
			s.m.Unlock()
			pos++
			if err != nil {
				return persistence.MarshalledEntry[K, V]{}, false, err
			}
			if e != nil {
				return *e, true, nil
			}
		}
		return persistence.MarshalledEntry[K, V]{}, false, nil
	}, nil)
}

func (s *Store[K, V]) Size() int {
	s.m.Lock()
	defer s.m.Unlock()
	return len(s.index)
}
