package config

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/asnowfix/fermion/pkg/flash"
)

const (
	PrimaryFile = "wm_config.dat"
	BackupFile  = "wm_config.bak"
)

// Store holds the in-memory configuration record and its persisted copies.
// It is safe for concurrent use by the tick loop and the portal handler.
type Store struct {
	log       logr.Logger
	pair      flash.Pair
	boardType string
	defaults  Configuration

	mu     sync.Mutex
	record Configuration
}

type Option func(*Store)

// WithDefaults sets the factory defaults a failed Load resets to.
func WithDefaults(c Configuration) Option {
	return func(s *Store) {
		s.defaults = c
	}
}

// WithBoardType overrides the header tag expected on load and written on save.
func WithBoardType(t string) Option {
	return func(s *Store) {
		s.boardType = t
	}
}

func NewStore(log logr.Logger, fs afero.Fs, opts ...Option) *Store {
	s := &Store{
		log:       log.WithName("config"),
		pair:      flash.NewPair(fs, PrimaryFile, BackupFile),
		boardType: DefaultBoardType,
	}
	for _, o := range opts {
		o(s)
	}
	if s.defaults.Header == "" {
		s.defaults.Header = s.boardType
	}
	s.record = s.defaults
	return s
}

// Load reads the primary copy, then the backup, and keeps the first valid
// one. It returns false, with the record reset to factory defaults, when
// neither copy is valid: the device must be provisioned again.
func (s *Store) Load() bool {
	var loaded Configuration
	_, err := s.pair.LoadFunc(func(data []byte) bool {
		c, err := Verify(data, s.boardType)
		if err != nil {
			s.log.Info("Rejecting stored configuration", "error", err)
			return false
		}
		loaded = c
		return true
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Info("No valid configuration, using factory defaults", "error", err)
		s.record = s.defaults
		return false
	}
	s.record = loaded
	s.log.V(1).Info("Loaded configuration", "ssid", loaded.WiFi[0].SSID, "ssid1", loaded.WiFi[1].SSID, "name", loaded.BoardName)
	return true
}

// Save seals the current record and writes it to both copies.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.record.Header = s.boardType
	s.record = s.record.Sealed()
	data, err := s.record.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.pair.Save(data); err != nil {
		s.log.Error(err, "Saving configuration")
		return fmt.Errorf("saving configuration: %w", err)
	}
	s.log.Info("Saved configuration", "checksum", fmt.Sprintf("0x%08x", s.record.Checksum))
	return nil
}

// Clear zeroes the record and saves it.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = Zero(s.boardType)
	return s.saveLocked()
}

// SetCredentials replaces the whole record and persists it. A field that does
// not fit its slot fails with ErrTooLong and leaves the store unchanged.
func (s *Store) SetCredentials(creds [NumCredentials]Credential, boardName string) error {
	c := Configuration{
		Header:    s.boardType,
		WiFi:      creds,
		BoardName: boardName,
	}
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = c
	return s.saveLocked()
}

func (s *Store) IsZero() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.IsZero()
}

func (s *Store) Provisioned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Provisioned()
}

// SSID returns the SSID of slot i, or "" when i is out of range.
func (s *Store) SSID(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= NumCredentials {
		return ""
	}
	return s.record.WiFi[i].SSID
}

// PW returns the password of slot i, or "" when i is out of range.
func (s *Store) PW(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= NumCredentials {
		return ""
	}
	return s.record.WiFi[i].Password
}

func (s *Store) BoardName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.BoardName
}

// Credentials returns the usable credential slots, in slot order.
func (s *Store) Credentials() []Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds := make([]Credential, 0, NumCredentials)
	for _, w := range s.record.WiFi {
		if w.Usable() {
			creds = append(creds, w)
		}
	}
	return creds
}

// Record returns a copy of the in-memory record.
func (s *Store) Record() Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}
