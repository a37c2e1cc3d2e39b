package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// fileWrite is one staged filesystem effect of a mutation.
type fileWrite struct {
	path   string // native
	data   []byte
	remove bool

	// состояние до записи, для отката
	existed bool
	backup  []byte
	mode    os.FileMode
}

// writeAtomic replaces path with data through a temp file in the same
// directory.
func writeAtomic(path string, data []byte, mode os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".autofix-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// атомарная замена
	return os.Rename(tmp, path)
}

func (fw *fileWrite) capture() error {
	info, err := os.Stat(fw.path)
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		fw.existed = false
		fw.mode = 0o644
		return nil
	case err != nil:
		return err
	}
	fw.existed = true
	fw.mode = info.Mode().Perm()
	fw.backup, err = os.ReadFile(fw.path)
	return err
}

func (fw *fileWrite) apply() error {
	if fw.remove {
		err := os.Remove(fw.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return writeAtomic(fw.path, fw.data, fw.mode)
}

func (fw *fileWrite) undo() error {
	if !fw.existed {
		err := os.Remove(fw.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return writeAtomic(fw.path, fw.backup, fw.mode)
}

// persist applies writes in order. On failure the writes already done are
// undone in reverse order and the original error is returned.
func persist(writes []*fileWrite) error {
	for _, fw := range writes {
		if err := fw.capture(); err != nil {
			return fmt.Errorf("stat %s: %w", fw.path, err)
		}
	}
	for i, fw := range writes {
		if err := fw.apply(); err != nil {
			var undoErrs []error
			for j := i - 1; j >= 0; j-- {
				if uerr := writes[j].undo(); uerr != nil {
					undoErrs = append(undoErrs, uerr)
				}
			}
			err = fmt.Errorf("write %s: %w", fw.path, err)
			if len(undoErrs) > 0 {
				return errors.Join(append([]error{err}, undoErrs...)...)
			}
			return err
		}
	}
	return nil
}
