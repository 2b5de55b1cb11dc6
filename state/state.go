// Package state remembers which archived messages have been read, so the
// \Seen flag of a read-only mbox survives between runs.
package state

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Store interface {
	Seen(key string) bool
	MarkSeen(key, messageID string) error
	Snapshot() Snapshot
}

type Snapshot struct {
	Seen int
}

// Key identifies a message by the hash of its raw header.
func Key(header []byte) string {
	sum := sha256.Sum256(header)
	return hex.EncodeToString(sum[:])
}

type MemoryStore struct {
	seen map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]string)}
}

func (m *MemoryStore) Seen(key string) bool {
	if key == "" {
		return false
	}
	_, ok := m.seen[key]
	return ok
}

func (m *MemoryStore) MarkSeen(key, messageID string) error {
	if key != "" {
		m.seen[key] = messageID
	}
	return nil
}

func (m *MemoryStore) Snapshot() Snapshot {
	return Snapshot{Seen: len(m.seen)}
}

// FileStore appends every newly seen message to seen.jsonl in its
// directory and reads the file back on open.
type FileStore struct {
	*MemoryStore
	path   string
	writer *bufio.Writer
	file   *os.File
}

type record struct {
	Key       string `json:"key"`
	MessageID string `json:"message_id,omitempty"`
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	store := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        filepath.Join(dir, "seen.jsonl"),
	}

	if err := store.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(store.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open state file for append: %w", err)
	}
	store.file = file
	store.writer = bufio.NewWriter(file)

	return store, nil
}

func (f *FileStore) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(text, &rec); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		_ = f.MemoryStore.MarkSeen(rec.Key, rec.MessageID)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	return nil
}

func (f *FileStore) MarkSeen(key, messageID string) error {
	if key == "" || f.Seen(key) {
		return nil
	}
	_ = f.MemoryStore.MarkSeen(key, messageID)

	data, err := json.Marshal(record{Key: key, MessageID: messageID})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}
	if _, err := f.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	return nil
}

// Close flushes and closes the state file.
func (f *FileStore) Close() error {
	if f.file == nil {
		return nil
	}

	var firstErr error
	if err := f.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close state file: %w", err)
	}
	f.file = nil

	return firstErr
}
