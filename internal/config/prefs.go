package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

const (
	appDirName      = "NovelDownloader"
	unixAppDirName  = ".novel_downloader"
	preferencesFile = "config.json"
	keyDatabasePath = "database_path"
)

// AppDir returns the per-platform application directory:
// %APPDATA%\NovelDownloader on Windows, ~/Library/Application Support/NovelDownloader
// on macOS, and ~/.novel_downloader elsewhere.
func AppDir() (string, error) {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", appDirName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDirName), nil
	default:
		return filepath.Join(home, unixAppDirName), nil
	}
}

// Preferences is the user-editable config.json in the app dir.
// It is read once at startup; changes apply on the next start.
type Preferences struct {
	v    *viper.Viper
	path string
}

// LoadPreferences reads <appDir>/config.json. A missing file yields empty
// preferences.
func LoadPreferences(appDir string) (*Preferences, error) {
	p := &Preferences{v: viper.New(), path: filepath.Join(appDir, preferencesFile)}
	p.v.SetConfigFile(p.path)
	p.v.SetConfigType("json")

	if _, err := os.Stat(p.path); errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read preferences %s: %w", p.path, err)
	}
	return p, nil
}

// Path returns the preferences file location.
func (p *Preferences) Path() string { return p.path }

// DatabasePath returns the configured database file, or "" when unset or
// not absolute.
func (p *Preferences) DatabasePath() string {
	path := p.v.GetString(keyDatabasePath)
	if !filepath.IsAbs(path) {
		return ""
	}
	return path
}

// SetDatabasePath stores an absolute database file path and writes the
// preferences file.
func (p *Preferences) SetDatabasePath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("database path must be absolute: %q", path)
	}
	p.v.Set(keyDatabasePath, filepath.Clean(path))

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create app dir: %w", err)
	}
	if err := p.v.WriteConfigAs(p.path); err != nil {
		return fmt.Errorf("write preferences %s: %w", p.path, err)
	}
	return nil
}
