package download

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/listenupapp/novelvault/internal/domain"
)

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	work := &domain.Work{ID: "qidian_1", Title: "Reverend Insanity", Author: "Gu Zhen Ren", Status: "completed"}

	if err := WriteHeader(&buf, work); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	want := "《Reverend Insanity》\nAuthor: Gu Zhen Ren\nSource: qidian\nStatus: completed\n"
	if buf.String() != want {
		t.Errorf("header:\ngot  %q\nwant %q", buf.String(), want)
	}
}

func TestWriteFileAtomic_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "novel.txt")

	for _, body := range []string{"first download, longer text", "second"} {
		err := WriteFileAtomic(path, func(w io.Writer) error {
			_, err := io.WriteString(w, body)
			return err
		})
		if err != nil {
			t.Fatalf("WriteFileAtomic: %v", err)
		}
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("content: got %q, want full overwrite", got)
	}
}

func TestWriteFileAtomic_FailureKeepsPreviousArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novel.txt")
	if err := os.WriteFile(path, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("assembly failed")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "half")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "previous" {
		t.Errorf("previous artifact clobbered: %q", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
