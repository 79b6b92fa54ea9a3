package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigFileName is the configuration file looked up by FindConfig.
const ConfigFileName = "strata.yaml"

// ErrNoRoot is returned when no project root is found above a directory.
var ErrNoRoot = errors.New("no strata project found")

var configNames = []string{ConfigFileName, "strata.yml"}

// FindConfig walks up from startDir and returns the path of the nearest
// strata.yaml (or strata.yml).
func FindConfig(startDir string) (string, error) {
	return walkUp(startDir, func(dir string) (string, bool) {
		path, err := FindConfigIn(dir)
		return path, err == nil
	})
}

// FindRoot walks up from startDir to the nearest directory holding a
// configuration file or a .strata data directory.
func FindRoot(startDir string) (string, error) {
	return walkUp(startDir, func(dir string) (string, bool) {
		if _, err := FindConfigIn(dir); err == nil {
			return dir, true
		}
		if info, err := os.Stat(filepath.Join(dir, ".strata")); err == nil && info.IsDir() {
			return dir, true
		}
		return "", false
	})
}

// FindConfigIn returns the configuration file of dir without walking up.
func FindConfigIn(dir string) (string, error) {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNoRoot
}

func walkUp(startDir string, match func(dir string) (string, bool)) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if found, ok := match(dir); ok {
			return found, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoRoot
		}
		dir = parent
	}
}
