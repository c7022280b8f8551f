package sessionstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fileEntry struct {
	Data      []byte    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps every session in a single JSON document. Writes go to a
// temp file in the same directory which is then renamed over the original.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return connErr("mkdir", err)
	}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return s.write(map[string]fileEntry{})
	} else if err != nil {
		return connErr("stat", err)
	}
	return nil
}

func (s *FileStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc[key] = fileEntry{Data: append([]byte(nil), blob...), UpdatedAt: time.Now()}
	return s.write(doc)
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, false, err
	}
	e, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	return e.Data, true, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return s.write(doc)
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

func (s *FileStore) HealthCheck(ctx context.Context) bool {
	return safeHealth(func() bool {
		fi, err := os.Stat(filepath.Dir(s.path))
		return err == nil && fi.IsDir()
	})
}

func (s *FileStore) Close() error { return nil }

// read loads the document. A missing file is an empty document; an
// undecodable one is moved aside and also treated as empty.
func (s *FileStore) read() (map[string]fileEntry, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]fileEntry{}, nil
	}
	if err != nil {
		return nil, connErr("read", err)
	}
	doc := map[string]fileEntry{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.quarantine(errors.Wrap(ErrCorrupt, err.Error()))
		return map[string]fileEntry{}, nil
	}
	return doc, nil
}

func (s *FileStore) quarantine(cause error) {
	dst := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, dst); err != nil {
		zap.L().Error("sessionstore: quarantine session file failed",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	zap.L().Warn("sessionstore: session file corrupt, moved aside",
		zap.String("path", s.path), zap.String("quarantine", dst), zap.Error(cause))
}

func (s *FileStore) write(doc map[string]fileEntry) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "sessionstore: encode")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return connErr("create temp", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err = tmp.Write(raw); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return connErr("write temp", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return connErr("chmod", err)
	}
	return connErr("rename", os.Rename(tmpName, s.path))
}
