package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/mohammed-shakir/water-intersect/internal/fault"
)

// ErrNotFound is returned by Locate when no file has the wanted extension.
var ErrNotFound = errors.New("dataset file not found")

// Extract unpacks a zip archive into the archive's directory and returns the
// directory named after the archive. Archives without a single top-level
// folder of that name are unpacked into it instead.
func Extract(archive string) (string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", fault.IOError("open archive", archive, err)
	}
	defer func() { _ = zr.Close() }()

	parent := filepath.Dir(archive)
	stem := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	dir := filepath.Join(parent, stem)

	dest := parent
	if !allUnder(zr.File, stem) {
		dest = dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fault.IOError("create extract dir", dir, err)
	}

	for _, f := range zr.File {
		if err := extractFile(f, dest); err != nil {
			return "", fault.IOError("extract archive", archive, err)
		}
	}
	return dir, nil
}

func allUnder(files []*zip.File, stem string) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		name := strings.TrimPrefix(filepath.ToSlash(f.Name), "./")
		if name != stem+"/" && !strings.HasPrefix(name, stem+"/") {
			return false
		}
	}
	return true
}

func extractFile(f *zip.File, dest string) error {
	target := filepath.Join(dest, filepath.FromSlash(f.Name))
	if !within(dest, target) {
		return fmt.Errorf("entry %q escapes %s", f.Name, dest)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %q: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("write entry %q: %w", f.Name, err)
	}
	return out.Close()
}

func within(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Locate walks dir and returns the first regular file whose extension matches
// ext, ignoring case.
func Locate(dir, ext string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ext) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fault.IOError("locate dataset", dir, err)
	}
	if found == "" {
		return "", fault.IOError("locate dataset", dir, fmt.Errorf("%w: no %s file", ErrNotFound, ext))
	}
	return found, nil
}
