// Package util provides common utility functions.
package util

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxFilenameBytes bounds SafeFilename's output, leaving room for an
// extension within common 255-byte filesystem limits.
const MaxFilenameBytes = 200

var (
	// Characters no mainstream filesystem accepts in a name.
	reservedCharRe = regexp.MustCompile(`[<>:"/\\|?*]`)
	// Runs of whitespace.
	whitespaceRe = regexp.MustCompile(`\s+`)

	windowsReserved = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
)

// SafeFilename turns a work title into a file name usable on Windows, macOS,
// and Linux. Unlike a slug it keeps non-ASCII text, so "诡秘之主" stays
// readable.
//
// Rules:
//  1. NFC-normalize so visually equal titles map to the same name
//  2. Replace reserved characters and control characters with "_"
//  3. Collapse whitespace, trim spaces and dots at both ends
//  4. Truncate to MaxFilenameBytes on a rune boundary
//  5. Prefix Windows device names with "_"
//
// An empty result becomes fallback.
func SafeFilename(title, fallback string) string {
	s := norm.NFC.String(title)

	s = reservedCharRe.ReplaceAllString(s, "_")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, s)

	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, " .")

	if len(s) > MaxFilenameBytes {
		cut := MaxFilenameBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], " .")
	}

	base, _, _ := strings.Cut(s, ".")
	if windowsReserved[strings.ToUpper(base)] {
		s = "_" + s
	}

	if s == "" {
		return fallback
	}
	return s
}

// ArtifactFilename names a work's downloaded text file. The key, usually the
// work ID, keeps works that share a title from writing the same file.
func ArtifactFilename(title, key string) string {
	key = SafeFilename(key, "work")
	name := SafeFilename(title, "")
	if name == "" {
		return key + ".txt"
	}
	return name + " [" + key + "].txt"
}
