package token

import (
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/spf13/afero"
)

func TestRefreshTokenLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(testr.New(t), fs)

	if s.HasRefreshToken() {
		t.Fatalf("fresh store reports a refresh token")
	}
	if _, ok := s.LoadRefreshToken(); ok {
		t.Fatalf("fresh store loaded a refresh token")
	}

	if err := s.SaveRefreshToken("rt-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveRefreshToken("rt-2"); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, name := range []string{PrimaryFile, BackupFile} {
		data, err := afero.ReadFile(fs, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != "rt-2" {
			t.Errorf("%s: got %q, want rt-2", name, data)
		}
	}

	if err := s.DeleteRefreshToken(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.HasRefreshToken() {
		t.Errorf("refresh token still present after delete")
	}
}

func TestRefreshTokenBackupFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(testr.New(t), fs)
	if err := s.SaveRefreshToken("rt-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := afero.WriteFile(fs, PrimaryFile, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	got, ok := s.LoadRefreshToken()
	if !ok || got != "rt-1" {
		t.Errorf("got %q, %v; want rt-1 from backup", got, ok)
	}
}

func TestEmptyRefreshTokenRejected(t *testing.T) {
	s := NewStore(testr.New(t), afero.NewMemMapFs())
	if err := s.SaveRefreshToken(""); err != ErrNoRefreshToken {
		t.Errorf("got %v, want ErrNoRefreshToken", err)
	}
}
