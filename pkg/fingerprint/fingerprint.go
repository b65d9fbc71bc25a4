// Package fingerprint computes content digests for build inputs and outputs.
// Digests are SHA-256, rendered as lowercase hex, and are stable across
// invocations and platforms for identical content.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// File returns the digest of a single file's content.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Dir returns the digest of a directory subtree. The digest covers the
// sorted listing of relative paths plus the content digest of every regular
// file, so renames, additions, deletions, and edits all change it.
// Symlinks and other non-regular entries contribute their path only.
func Dir(root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}

	type entry struct {
		rel    string
		digest string
	}
	entries := make([]entry, 0)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		e := entry{rel: filepath.ToSlash(rel)}
		if d.Type().IsRegular() {
			e.digest, err = File(path)
			if err != nil {
				return err
			}
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00%s\x00", e.rel, e.digest)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Literal returns the digest of a named key-value input.
func Literal(name, value string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", name, value)
	return hex.EncodeToString(h.Sum(nil))
}

// Strings returns the digest of an ordered sequence of strings. Callers are
// responsible for canonical ordering of unordered collections (e.g. sorting
// environment variables) before hashing.
func Strings(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%s\x00", p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Path returns the digest of whatever the path refers to: File for regular
// files, Dir for directories.
func Path(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return Dir(path)
	}
	return File(path)
}
