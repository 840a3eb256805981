package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML configuration file. Environment variables take
// precedence over it.
type FileConfig struct {
	Server struct {
		Host        string `toml:"host"`
		EncodeCache *int   `toml:"encode_cache"`
	} `toml:"server"`

	Train struct {
		Workers    int  `toml:"workers"`
		NoProgress bool `toml:"no_progress"`
	} `toml:"train"`

	Logging struct {
		Debug bool `toml:"debug"`
		Trace bool `toml:"trace"`
	} `toml:"logging"`
}

var (
	configOnce sync.Once
	config     *FileConfig
	configPath string
)

// GetConfigPaths returns the list of possible config file paths for the current OS
func GetConfigPaths() []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, filepath.Join(appData, "minbpe", "config.toml"))
		}
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			paths = append(paths, filepath.Join(xdgConfig, "minbpe", "config.toml"))
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "minbpe", "config.toml"),
			filepath.Join(home, ".minbpe", "config.toml"),
		)
	}

	return paths
}

// loadFileConfig loads the first available configuration file
func loadFileConfig() (*FileConfig, string, error) {
	for _, path := range GetConfigPaths() {
		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, "", err
		}

		var cfg FileConfig
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return nil, "", fmt.Errorf("error parsing config file %s: %w", path, err)
		}
		return &cfg, path, nil
	}
	return nil, "", nil
}

// ReloadFileConfig forgets the loaded config file so the next lookup reads
// it again.
func ReloadFileConfig() {
	configOnce = sync.Once{}
	config, configPath = nil, ""
}

// GetConfigValue returns the value for a given environment variable key from the config file
func GetConfigValue(key string) string {
	configOnce.Do(func() {
		var err error
		config, configPath, err = loadFileConfig()
		if err != nil {
			slog.Warn("failed to load config file", "error", err)
		} else if config != nil {
			slog.Debug("loaded config file", "path", configPath)
		}
	})

	if config == nil {
		return ""
	}

	switch key {
	case "MINBPE_HOST":
		return config.Server.Host
	case "MINBPE_ENCODE_CACHE":
		if config.Server.EncodeCache != nil {
			return strconv.Itoa(*config.Server.EncodeCache)
		}
	case "MINBPE_TRAIN_WORKERS":
		if config.Train.Workers > 0 {
			return strconv.Itoa(config.Train.Workers)
		}
	case "MINBPE_NOPROGRESS":
		if config.Train.NoProgress {
			return "1"
		}
	case "MINBPE_DEBUG":
		if config.Logging.Debug {
			return "1"
		}
	case "MINBPE_TRACE":
		if config.Logging.Trace {
			return "1"
		}
	}

	return ""
}

// GenerateExampleConfig returns a commented example TOML configuration
func GenerateExampleConfig() string {
	return `# minbpe configuration file
# Environment variables override every value here.

[server]
# Network binding address (default: "127.0.0.1:11535")
host = "127.0.0.1:11535"
# Chunks memoized by the server encoder, 0 disables (default: 4096)
encode_cache = 4096

[train]
# Goroutines used to count pairs (default: number of CPUs)
workers = 4
# Hide the merge progress bar
no_progress = false

[logging]
debug = false
trace = false
`
}
