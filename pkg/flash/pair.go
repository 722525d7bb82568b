// Package flash stores small blobs as a primary/backup pair of files on the
// device filesystem.
package flash

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
)

var ErrNotFound = errors.New("flash: no readable copy")

// Pair is a redundant file pair. Writes go to both files; reads try the
// primary first, then the backup.
type Pair struct {
	Fs      afero.Fs
	Primary string
	Backup  string
}

func NewPair(fs afero.Fs, primary, backup string) Pair {
	return Pair{Fs: fs, Primary: primary, Backup: backup}
}

func (p Pair) files() [2]string {
	return [2]string{p.Primary, p.Backup}
}

// Save writes data to both files. The two writes are independent: a failure
// on one does not prevent or undo the other.
func (p Pair) Save(data []byte) error {
	var errs []error
	for _, name := range p.files() {
		if err := afero.WriteFile(p.Fs, name, data, 0o600); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Load returns the content of the first readable copy.
func (p Pair) Load() ([]byte, error) {
	return p.LoadFunc(nil)
}

// LoadFunc returns the first copy accepted by accept (any readable copy when
// accept is nil).
func (p Pair) LoadFunc(accept func([]byte) bool) ([]byte, error) {
	var errs []error
	for _, name := range p.files() {
		data, err := afero.ReadFile(p.Fs, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if accept != nil && !accept(data) {
			errs = append(errs, fmt.Errorf("%s: rejected content", name))
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNotFound, errors.Join(errs...))
}

// Exists reports whether either copy exists, without reading it.
func (p Pair) Exists() bool {
	for _, name := range p.files() {
		if ok, _ := afero.Exists(p.Fs, name); ok {
			return true
		}
	}
	return false
}

// Remove deletes both copies. Missing files are not an error.
func (p Pair) Remove() error {
	var errs []error
	for _, name := range p.files() {
		if err := p.Fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
