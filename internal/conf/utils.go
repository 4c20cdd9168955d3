// conf/utils.go various util functions for configuration package
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/occupancy-go/internal/errors"
	"gopkg.in/yaml.v3"
)

const appDirName = "occupancy-go"

// GetDefaultConfigPaths returns a list of default configuration paths for the current operating system.
// If a config.yaml file is found in any of the paths, it returns that path as the only entry.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", appDirName),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", appDirName),
			"/etc/" + appDirName,
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// FindConfigFile locates the configuration file.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Category(errors.CategoryNotFound).
		Context("operation", "find-config-file").
		Build()
}

// GetBasePath expands environment variables in the given path and ensures the resulting directory exists.
func GetBasePath(path string) string {
	basePath := filepath.Clean(os.ExpandEnv(path))

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(basePath, 0o750); err != nil {
			fmt.Printf("failed to create directory '%s': %v\n", basePath, err)
		}
	}

	return basePath
}

// SaveYAMLConfig writes settings to configPath, replacing the file atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileParsing).
			Context("operation", "marshal-settings").
			Build()
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config.yaml.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempName)
		return fmt.Errorf("error writing temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
