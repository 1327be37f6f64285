package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceFile is an EPUB found in the library directory.
type SourceFile struct {
	Path        string // absolute path
	Key         string // library-relative path without the .epub suffix
	Fingerprint string // sha256 of file content, hex
	Size        int64
}

// Changes classifies the library against the ledger.
type Changes struct {
	New       []SourceFile
	Changed   []SourceFile
	Unchanged []SourceFile
	// Missing holds ledger keys whose files are gone from the library.
	Missing []string
}

// Total returns the number of files needing work.
func (c *Changes) Total() int { return len(c.New) + len(c.Changed) }

// Fingerprint computes the content hash of the file at path. The hash is
// streamed, so multi-megabyte books do not get slurped into memory.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Scan walks root for .epub files and fingerprints each. Keys are derived
// from the relative path alone, so a book is classified before it is ever
// parsed.
func Scan(root string) ([]SourceFile, error) {
	var files []SourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".epub") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fp, err := Fingerprint(path)
		if err != nil {
			return err
		}
		files = append(files, SourceFile{
			Path:        path,
			Key:         KeyFor(rel),
			Fingerprint: fp,
			Size:        info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan library %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// KeyFor converts a library-relative path into a book key: forward slashes,
// .epub suffix removed. "Austen/Emma.epub" becomes "Austen/Emma".
func KeyFor(rel string) string {
	key := filepath.ToSlash(rel)
	if strings.EqualFold(filepath.Ext(key), ".epub") {
		key = key[:len(key)-len(filepath.Ext(key))]
	}
	return key
}

// Classify splits scanned files into new, changed and unchanged sets, and
// reports ledger entries whose files have disappeared. Pure function of
// its inputs; no IO.
func Classify(l *Ledger, files []SourceFile) *Changes {
	c := &Changes{}
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Key] = true
		entry, ok := l.Get(f.Key)
		switch {
		case !ok:
			c.New = append(c.New, f)
		case entry.Fingerprint != f.Fingerprint:
			c.Changed = append(c.Changed, f)
		default:
			c.Unchanged = append(c.Unchanged, f)
		}
	}
	for _, key := range l.Keys() {
		if !present[key] {
			c.Missing = append(c.Missing, key)
		}
	}
	return c
}
