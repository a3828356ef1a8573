// SPDX-License-Identifier: MIT

// Package keys generates per-rendition AES-128 key material and writes
// the key file plus the key-info descriptor the encoder consumes to
// enable per-segment encryption.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// KeySize is the AES-128 key and IV length in bytes.
const KeySize = 16

// Material holds one rendition's symmetric key and initialization vector.
// Each rendition gets fresh material so a compromised key exposes only
// its own rendition.
type Material struct {
	Key []byte
	IV  []byte
}

// IVHex renders the IV as 32 lowercase hex characters, the form both the
// key-info file and the playlist EXT-X-KEY tag require.
func (m Material) IVHex() string {
	return hex.EncodeToString(m.IV)
}

// Generate draws a fresh key, and a fresh IV unless the caller pinned
// one, from the platform CSPRNG.
func Generate(iv []byte) (Material, error) {
	m := Material{Key: make([]byte, KeySize)}
	if _, err := rand.Read(m.Key); err != nil {
		return Material{}, fmt.Errorf("generate key: %w", err)
	}
	if iv != nil {
		if len(iv) != KeySize {
			return Material{}, fmt.Errorf("iv must be %d bytes, got %d", KeySize, len(iv))
		}
		m.IV = append([]byte(nil), iv...)
		return m, nil
	}
	m.IV = make([]byte, KeySize)
	if _, err := rand.Read(m.IV); err != nil {
		return Material{}, fmt.Errorf("generate iv: %w", err)
	}
	return m, nil
}

// Artifacts names the files Write produced inside the working directory.
// Paths are relative to the directory because the encoder runs with its
// working directory set there.
type Artifacts struct {
	KeyName  string // raw key bytes, e.g. "720p.key"
	InfoName string // key-info descriptor, e.g. "720p.keyinfo"
}

// Write persists the key file and the three-line key-info descriptor
// (key URI, key file path, IV hex) atomically into dir.
func Write(dir, tag, uri string, m Material) (Artifacts, error) {
	art := Artifacts{
		KeyName:  tag + ".key",
		InfoName: tag + ".keyinfo",
	}

	if err := renameio.WriteFile(filepath.Join(dir, art.KeyName), m.Key, 0o600); err != nil {
		return Artifacts{}, fmt.Errorf("write key file: %w", err)
	}

	info := fmt.Sprintf("%s\n%s\n%s\n", uri, art.KeyName, m.IVHex())
	if err := renameio.WriteFile(filepath.Join(dir, art.InfoName), []byte(info), 0o600); err != nil {
		return Artifacts{}, fmt.Errorf("write key-info file: %w", err)
	}

	return art, nil
}
