package download

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/listenupapp/novelvault/internal/domain"
)

// WriteHeader writes the artifact's human-readable header.
func WriteHeader(w io.Writer, work *domain.Work) error {
	if _, err := fmt.Fprintf(w, "《%s》\n", work.Title); err != nil {
		return err
	}
	lines := []struct{ label, value string }{
		{"Author", work.Author},
		{"Source", work.ID.Source()},
		{"Status", work.Status},
	}
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", l.label, l.value); err != nil {
			return err
		}
	}
	return nil
}

// WriteFileAtomic writes an artifact via a temp file in the same directory
// and renames it over path, replacing any earlier download in one step.
func WriteFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}
