package tokencache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store remembers the last token a user interacted with. It is a
// best-effort convenience cache, never authoritative: a missing or
// unreadable file simply yields an empty value.
type Store struct {
	path string
	mu   sync.Mutex
	last string
}

type state struct {
	LastToken string `json:"last_token"`
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		return "", err
	}
	s.last = st.LastToken
	return s.last, nil
}

func (s *Store) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	st := state{LastToken: token}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("token cache rename: %w", err)
	}
	s.last = token
	return nil
}

func (s *Store) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
