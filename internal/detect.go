package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "chat-langchain"

// ConfigPaths holds the detected locations of the CLI's own files
type ConfigPaths struct {
	ConfigDir  string // directory holding config.yaml
	ConfigFile string // config.yaml
	CacheDir   string // credential cache directory
}

// DetectConfigPaths detects the config and cache locations based on the operating system
func DetectConfigPaths() (ConfigPaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return ConfigPaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}

	var configDir, cacheDir string
	switch runtime.GOOS {
	case "darwin":
		configDir = filepath.Join(home, "Library/Application Support", appName)
		cacheDir = filepath.Join(home, "Library/Caches", appName)
	case "linux":
		// XDG locations win when set
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, appName)
		} else {
			configDir = filepath.Join(home, ".config", appName)
		}
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			cacheDir = filepath.Join(xdg, appName)
		} else {
			cacheDir = filepath.Join(home, ".cache", appName)
		}
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(base, appName)
		cacheDir = filepath.Join(base, appName, "cache")
	default:
		return ConfigPaths{}, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	return ConfigPaths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, "config.yaml"),
		CacheDir:   cacheDir,
	}, nil
}

// ConfigExists checks if the config file exists
func (cp ConfigPaths) ConfigExists() bool {
	_, err := os.Stat(cp.ConfigFile)
	return err == nil
}
