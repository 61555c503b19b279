package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdbridge/mdbridge/pkg/resync"
	"github.com/pelletier/go-toml/v2"
)

// How many parent directories to traverse before considering a directory as not a vault
const maxDepth = 10

// Default .mdbridge/config.toml content
const DefaultConfig = `
[core]
extensions=["md", "markdown"]

[remote]
endpoint="https://open.example-docs.com"

[upload]
batch_size=50
`

var (
	// Lazy-load configuration and ensure a single read
	configOnce      resync.Once
	configSingleton *Config
)

// Note: Fields must be public for toml package to unmarshall
type ConfigFile struct {
	Core   ConfigCore
	Remote ConfigRemote
	Mirror ConfigMirror
	Upload ConfigUpload
}

type ConfigCore struct {
	Extensions []string
}

// ConfigRemote configures the block-document service.
type ConfigRemote struct {
	Endpoint    string `toml:"endpoint"`
	AppID       string `toml:"app_id"`
	AppSecret   string `toml:"app_secret"`
	FolderToken string `toml:"folder_token"`
	// OwnerID receives ownership of every uploaded document when set.
	OwnerID string `toml:"owner_id"`
	// HistoryFile overrides the default upload-history location.
	HistoryFile string `toml:"history_file"`
}

// ConfigMirror configures an optional asset mirror keeping a copy of every
// uploaded image. Type is "fs" or "s3".
type ConfigMirror struct {
	Type string `toml:"type"`
	// fs-specific attributes
	Dir string `toml:"dir"`
	// s3-specific attributes
	Endpoint   string `toml:"endpoint"`
	AccessKey  string `toml:"access_key"`
	SecretKey  string `toml:"secret_key"`
	BucketName string `toml:"bucket_name"`
	Secure     bool   `toml:"secure"`
}

// ConfigUpload exposes the tunables of the upload pipeline. Zero values
// fall back on the defaults used against the production service.
type ConfigUpload struct {
	BatchSize int `toml:"batch_size"`
	// SettleDelayMs overrides the post-mutation settle delay (tests).
	SettleDelayMs int `toml:"settle_delay_ms"`
	// RetryBackoffMs overrides the retry backoff (tests).
	RetryBackoffMs int `toml:"retry_backoff_ms"`
}

// SupportExtension checks if the given file extension must be considered.
func (f *ConfigFile) SupportExtension(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".") // ".md" => "md"
	for _, extension := range f.Core.Extensions {
		if strings.EqualFold(extension, ext) { // case-insensitive
			return true
		}
	}
	return false
}

type Config struct {
	// VaultDirectory is the root directory containing the notes.
	VaultDirectory string

	// ConfigFile stores the attributes from .mdbridge/config.toml.
	ConfigFile ConfigFile

	// DryRun prevents any remote mutation.
	DryRun bool
}

// HistoryPath returns the location of the upload-history file.
func (c *Config) HistoryPath() string {
	if c.ConfigFile.Remote.HistoryFile != "" {
		return c.ConfigFile.Remote.HistoryFile
	}
	return filepath.Join(c.VaultDirectory, ".mdbridge", "history.json")
}

// BatchSize returns the maximum number of blocks per bulk-create call.
func (c *Config) BatchSize() int {
	if c.ConfigFile.Upload.BatchSize > 0 {
		return c.ConfigFile.Upload.BatchSize
	}
	return 50
}

// SettleDelay returns the wait applied after destructive remote mutations.
func (c *Config) SettleDelay() time.Duration {
	if c.ConfigFile.Upload.SettleDelayMs > 0 {
		return time.Duration(c.ConfigFile.Upload.SettleDelayMs) * time.Millisecond
	}
	return 500 * time.Millisecond
}

// SetVerboseLevel sets the global verbosity level.
func (c *Config) SetVerboseLevel(level VerboseLevel) *Config {
	CurrentLogger().SetVerboseLevel(level)
	return c
}

func CurrentConfig() *Config {
	configOnce.Do(func() {
		var err error
		configSingleton, err = ReadConfigFromDirectory(currentHome())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to read current configuration: %v\n", err)
			os.Exit(1)
		}
		if configSingleton == nil {
			fmt.Fprintln(os.Stderr, "fatal: not a mdbridge vault (or any of the parent directories): .mdbridge")
			os.Exit(1)
		}
	})
	return configSingleton
}

func currentHome() string {
	// Supports overriding the root directory, mainly for testing purposes.
	if home := os.Getenv("MDBRIDGE_HOME"); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to determine current directory: %v\n", err)
		os.Exit(1)
	}
	return cwd
}

// InitConfigFromDirectory creates a new .mdbridge directory with the
// default configuration file. Fails when the directory is already a vault.
func InitConfigFromDirectory(path string) (*Config, error) {
	bridgePath := filepath.Join(path, ".mdbridge")
	if _, err := os.Stat(bridgePath); err == nil {
		return nil, fmt.Errorf("directory %q is already a vault", path)
	}
	if err := os.MkdirAll(bridgePath, 0755); err != nil {
		return nil, err
	}
	configPath := filepath.Join(bridgePath, "config.toml")
	if err := os.WriteFile(configPath, []byte(DefaultConfig), 0644); err != nil {
		return nil, err
	}
	return ReadConfigFromDirectory(path)
}

// ReadConfigFromDirectory loads the configuration by searching for a
// .mdbridge directory in the given directory or any parent directory.
func ReadConfigFromDirectory(path string) (*Config, error) {
	rootPath := path
	i := 0 // Safeguard to not go up too far
	for {
		i++
		if i > maxDepth {
			return nil, nil
		}
		bridgePath := filepath.Join(rootPath, ".mdbridge")
		_, err := os.Stat(bridgePath)
		if os.IsNotExist(err) {
			if len(strings.Split(rootPath, string(os.PathSeparator))) <= 2 {
				// Root directory detected
				return nil, nil
			}
			rootPath = filepath.Clean(filepath.Join(rootPath, ".."))
		} else if err != nil {
			return nil, fmt.Errorf("error while searching for configuration directory: %v", err)
		} else {
			break
		}
	}

	configPath := filepath.Join(rootPath, ".mdbridge", "config.toml")
	content, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		content = []byte(DefaultConfig)
	} else if err != nil {
		return nil, fmt.Errorf("error while reading configuration file: %v", err)
	}

	var configFile ConfigFile
	if err := toml.Unmarshal(content, &configFile); err != nil {
		return nil, fmt.Errorf("invalid configuration file %q: %v", configPath, err)
	}

	return &Config{
		VaultDirectory: rootPath,
		ConfigFile:     configFile,
	}, nil
}

// Reset clears the cached configuration (useful in tests).
func Reset() {
	configOnce.Reset()
	configSingleton = nil
	loggerOnce.Reset()
	loggerSingleton = nil
}
