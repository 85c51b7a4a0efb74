package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileLedgerStore keeps the ledger as a newline-delimited file of ids.
type FileLedgerStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// NewFileLedgerStore opens (creating if needed) the ledger file at path.
func NewFileLedgerStore(path string) (*FileLedgerStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger file: %w", err)
	}

	return &FileLedgerStore{path: path, file: f}, nil
}

// Load reads every non-blank line of the ledger file.
func (s *FileLedgerStore) Load(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger file: %w", err)
	}
	return ids, nil
}

// Append writes id as one line and syncs the file.
func (s *FileLedgerStore) Append(ctx context.Context, id string) error {
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("ledger id %q contains a newline", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, err := s.file.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("writing ledger file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("syncing ledger file: %w", err)
	}
	return nil
}

func (s *FileLedgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
