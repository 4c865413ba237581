// Package id generates prefixed identifiers for rows the library creates itself.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefix names the kind of row an ID belongs to.
type Prefix string

// Prefixes for generated IDs.
const (
	PrefixDownload Prefix = "dl"
	PrefixSession  Prefix = "rs"
	PrefixJob      Prefix = "job"
)

// alphabet avoids '-' and '_' so an ID never looks like a work ID and the
// prefix separator stays unambiguous.
const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	size     = 16
)

// Generate creates a prefixed unique ID, e.g. "dl-4f9XkQ2mBv7Tn0aZ".
func Generate(p Prefix) (string, error) {
	s, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return string(p) + "-" + s, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(p Prefix) string {
	s, err := Generate(p)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return s
}

// Is reports whether s looks like an ID generated with prefix p.
func Is(p Prefix, s string) bool {
	rest, ok := strings.CutPrefix(s, string(p)+"-")
	if !ok || len(rest) != size {
		return false
	}
	for _, r := range rest {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
