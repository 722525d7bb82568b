// Package token persists the OAuth refresh token as a redundant file pair.
package token

import (
	"errors"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/asnowfix/fermion/pkg/flash"
)

const (
	PrimaryFile = "wm_token.dat"
	BackupFile  = "wm_token.bak"
)

var ErrNoRefreshToken = errors.New("token: no refresh token")

type Store struct {
	log  logr.Logger
	pair flash.Pair
}

func NewStore(log logr.Logger, fs afero.Fs) *Store {
	return &Store{
		log:  log.WithName("token"),
		pair: flash.NewPair(fs, PrimaryFile, BackupFile),
	}
}

// HasRefreshToken only checks that a copy exists; it does not read it.
func (s *Store) HasRefreshToken() bool {
	return s.pair.Exists()
}

// SaveRefreshToken overwrites both copies with token.
func (s *Store) SaveRefreshToken(token string) error {
	if token == "" {
		return ErrNoRefreshToken
	}
	s.log.V(1).Info("Saving refresh token", "length", len(token))
	return s.pair.Save([]byte(token))
}

func (s *Store) DeleteRefreshToken() error {
	s.log.Info("Deleting refresh token")
	return s.pair.Remove()
}

// LoadRefreshToken returns the first non-empty copy.
func (s *Store) LoadRefreshToken() (string, bool) {
	data, err := s.pair.LoadFunc(func(b []byte) bool {
		return len(strings.TrimSpace(string(b))) > 0
	})
	if err != nil {
		s.log.V(1).Info("No refresh token", "error", err)
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
