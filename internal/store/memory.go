package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
)

type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{m: map[string][]byte{}}
}

func (s *Memory) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[string(key)]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *Memory) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[string(key)] = bytes.Clone(value)
	return nil
}

func (s *Memory) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, string(key))
	return nil
}

func (s *Memory) Scan(_ context.Context, prefix []byte) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []KV
	for k, v := range s.m {
		if bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, KV{Key: []byte(k), Value: bytes.Clone(v)})
		}
	}
	sortKVs(out)
	return out, nil
}

func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

type SnapshotHeader struct {
	Version int    `json:"version"`
	Entries int    `json:"entries"`
	Note    string `json:"note,omitempty"`
}

// SaveSnapshot writes every entry to path as a JSON header line followed by
// a gob body, zstd-compressed.
func (s *Memory) SaveSnapshot(path, note string) error {
	kvs, _ := s.Scan(context.Background(), nil)
	if kvs == nil {
		kvs = []KV{}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(SnapshotHeader{Version: 1, Entries: len(kvs), Note: note})
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(kvs); err != nil {
		return eris.Wrap(err, "gob encode")
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadSnapshot replaces the contents of s with the snapshot at path.
func (s *Memory) LoadSnapshot(path string) (SnapshotHeader, error) {
	var hdr SnapshotHeader
	f, err := os.Open(path)
	if err != nil {
		return hdr, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, eris.Wrap(err, "read header")
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, eris.Wrap(err, "decode header")
	}
	if hdr.Version != 1 {
		return hdr, eris.Errorf("unsupported snapshot version %d", hdr.Version)
	}
	var kvs []KV
	if err := gob.NewDecoder(br).Decode(&kvs); err != nil {
		return hdr, eris.Wrap(err, "gob decode")
	}

	m := make(map[string][]byte, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	s.mu.Lock()
	s.m = m
	s.mu.Unlock()
	return hdr, nil
}
