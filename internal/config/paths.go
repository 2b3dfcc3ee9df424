package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformWindows = "windows"
	platformDarwin  = "darwin"
)

// BundleID is the application directory name used across all platforms.
const BundleID = "com.Rains.EcoPaste-Sync"

// AppName is the base name for the history database file.
const AppName = "EcoPaste"

// Config file names. The dev variant keeps development state away from a
// release install sharing the same data directory.
const (
	configFileName    = ".store.json"
	configFileNameDev = ".store.dev.json"
)

// DataDir returns the platform-specific directory for application data
// (history database, config, blob caches, migration marker).
// On Windows this is %APPDATA%\{BundleID}. On macOS,
// ~/Library/Application Support/{BundleID} per Apple guidelines. Elsewhere,
// XDG_DATA_HOME is respected (defaults to ~/.local/share/{BundleID}).
func DataDir() string {
	switch runtime.GOOS {
	case platformWindows:
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, BundleID)
		}
	case platformDarwin:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", BundleID)
		}
	default:
		return unixDataDir()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, "."+BundleID)
}

// unixDataDir returns the XDG-compliant data directory.
func unixDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, BundleID)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".local", "share", BundleID)
}

// ConfigFileName returns the config file basename for the given mode.
func ConfigFileName(dev bool) string {
	if dev {
		return configFileNameDev
	}

	return configFileName
}

// ConfigPath returns the full path of the config document inside dataDir.
func ConfigPath(dataDir string, dev bool) string {
	return filepath.Join(dataDir, ConfigFileName(dev))
}

// DatabasePath returns the history database path inside dataDir
// ({AppName}.db in release, {AppName}.dev.db in dev).
func DatabasePath(dataDir string, dev bool) string {
	name := AppName + ".db"
	if dev {
		name = AppName + ".dev.db"
	}

	return filepath.Join(dataDir, name)
}

// MigrationMarkerPath returns the migration marker path inside dataDir.
func MigrationMarkerPath(dataDir string, dev bool) string {
	name := ".migration"
	if dev {
		name = ".migration.dev"
	}

	return filepath.Join(dataDir, name)
}

// ImagesDir returns the directory holding ingested image blobs.
func ImagesDir(dataDir string) string {
	return filepath.Join(dataDir, "images")
}

// FilesDir returns the directory holding downloaded file blobs.
func FilesDir(dataDir string) string {
	return filepath.Join(dataDir, "files")
}

// BookmarksPath returns the local bookmarks cache file.
func BookmarksPath(dataDir string) string {
	return filepath.Join(dataDir, "bookmark-data.json")
}
