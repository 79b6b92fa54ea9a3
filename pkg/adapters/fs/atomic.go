package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempFilePrefix marks files staged by an atomic write. Listings and the
// watcher skip them.
const TempFilePrefix = "strata-tmp-"

func isTempFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), TempFilePrefix)
}

// writeFileAtomic stages data next to filename and renames it into place, so
// a concurrent List or Get sees either the old record or the new one. The
// parent directory must exist.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", filepath.Base(filename), err)
	}
	staged := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(staged)
		}
	}()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write staged file: %w", err)
	}
	if err = os.Chmod(staged, perm); err != nil {
		return fmt.Errorf("failed to chmod staged file: %w", err)
	}
	if err = os.Rename(staged, filename); err != nil {
		return fmt.Errorf("failed to move staged file to %s: %w", filename, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes a directory entry after a rename. Platforms that cannot
// open directories for sync are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// removeRecordFile deletes a record file. Entity directories are kept, so a
// concurrent write never races a directory removal.
func removeRecordFile(full string) error {
	if err := os.Remove(full); err != nil {
		return err
	}
	syncDir(filepath.Dir(full))
	return nil
}
