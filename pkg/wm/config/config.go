// Package config persists the device configuration record (WiFi credentials
// and board name) as a fixed-size, checksummed binary blob.
package config

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"unicode/utf8"
)

const (
	DefaultBoardType = "ESP32_WM"

	// NoConfig is the placeholder value of an unset credential field.
	NoConfig = "blank"

	HeaderMaxLen    = 16
	SSIDMaxLen      = 32
	PasswordMinLen  = 8
	PasswordMaxLen  = 64
	BoardNameMaxLen = 24
	NumCredentials  = 2
)

// RecordSize is the size in bytes of a serialized Configuration.
const RecordSize = HeaderMaxLen + NumCredentials*(SSIDMaxLen+PasswordMaxLen) + BoardNameMaxLen + 4

var (
	ErrInvalid  = errors.New("config: invalid record")
	ErrSize     = errors.New("config: wrong record size")
	ErrHeader   = errors.New("config: header mismatch")
	ErrChecksum = errors.New("config: checksum mismatch")
	ErrTooLong  = errors.New("config: field too long")
)

type Credential struct {
	SSID     string `json:"ssid" yaml:"ssid"`
	Password string `json:"password" yaml:"password"`
}

// Usable reports whether the credential can be used to join a network.
func (c Credential) Usable() bool {
	return c.SSID != "" && c.SSID != NoConfig && c.Password != NoConfig && len(c.Password) >= PasswordMinLen
}

// Configuration is the in-memory form of the persisted record.
type Configuration struct {
	Header    string
	WiFi      [NumCredentials]Credential
	BoardName string
	Checksum  uint32
}

// Zero returns an empty configuration carrying the given header tag.
func Zero(boardType string) Configuration {
	return Configuration{Header: boardType}
}

// IsZero reports whether no credential and no board name is set.
func (c Configuration) IsZero() bool {
	for _, w := range c.WiFi {
		if w.SSID != "" || w.Password != "" {
			return false
		}
	}
	return c.BoardName == ""
}

// Provisioned reports whether at least one credential slot is usable.
func (c Configuration) Provisioned() bool {
	for _, w := range c.WiFi {
		if w.Usable() {
			return true
		}
	}
	return false
}

// Validate checks that every field fits its slot, NUL terminator included.
func (c Configuration) Validate() error {
	var errs []error
	check := func(field, v string, size int) {
		if len(v) > size-1 {
			errs = append(errs, fmt.Errorf("%w: %s is %d bytes, max %d", ErrTooLong, field, len(v), size-1))
		}
	}
	check("header", c.Header, HeaderMaxLen)
	for i, w := range c.WiFi {
		check(fmt.Sprintf("ssid[%d]", i), w.SSID, SSIDMaxLen)
		check(fmt.Sprintf("password[%d]", i), w.Password, PasswordMaxLen)
	}
	check("board name", c.BoardName, BoardNameMaxLen)
	return errors.Join(errs...)
}

// MarshalBinary serializes the record, without recomputing the checksum.
func (c Configuration) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	c.encode(buf)
	binary.LittleEndian.PutUint32(buf[RecordSize-4:], c.Checksum)
	return buf, nil
}

// Sealed returns a copy of c with the checksum computed over its content.
func (c Configuration) Sealed() Configuration {
	buf := make([]byte, RecordSize)
	c.encode(buf)
	c.Checksum = crc32.ChecksumIEEE(buf[:RecordSize-4])
	return c
}

func (c Configuration) encode(buf []byte) {
	off := 0
	put := func(s string, size int) {
		putString(buf[off:off+size], s)
		off += size
	}
	put(c.Header, HeaderMaxLen)
	for _, w := range c.WiFi {
		put(w.SSID, SSIDMaxLen)
		put(w.Password, PasswordMaxLen)
	}
	put(c.BoardName, BoardNameMaxLen)
}

// UnmarshalBinary decodes a record. It only checks the size; use Verify for
// header and checksum.
func (c *Configuration) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: %w: %d bytes, want %d", ErrInvalid, ErrSize, len(data), RecordSize)
	}
	off := 0
	get := func(size int) string {
		s := getString(data[off : off+size])
		off += size
		return s
	}
	c.Header = get(HeaderMaxLen)
	for i := range c.WiFi {
		c.WiFi[i].SSID = get(SSIDMaxLen)
		c.WiFi[i].Password = get(PasswordMaxLen)
	}
	c.BoardName = get(BoardNameMaxLen)
	c.Checksum = binary.LittleEndian.Uint32(data[RecordSize-4:])
	return nil
}

// Verify checks a serialized record against the expected header tag.
func Verify(data []byte, boardType string) (Configuration, error) {
	var c Configuration
	if err := c.UnmarshalBinary(data); err != nil {
		return c, err
	}
	if sum := crc32.ChecksumIEEE(data[:RecordSize-4]); sum != c.Checksum {
		return c, fmt.Errorf("%w: %w: computed 0x%08x, stored 0x%08x", ErrInvalid, ErrChecksum, sum, c.Checksum)
	}
	if c.Header != boardType {
		return c, fmt.Errorf("%w: %w: %q", ErrInvalid, ErrHeader, c.Header)
	}
	return c, nil
}

// putString copies s as a NUL-terminated C string, truncating on a rune
// boundary so that the last byte of dst stays NUL.
func putString(dst []byte, s string) {
	clear(dst)
	if cut := len(dst) - 1; len(s) > cut {
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	copy(dst, s)
}

func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}
