// Package config loads lumen settings.
//
// Precedence, lowest to highest:
//   - built-in defaults
//   - ~/.config/lumen/config.toml (or --config)
//   - .env in the working directory
//   - LUMEN_* and provider environment variables
//   - command-line flags (applied by cmd/lumen)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/csheth/lumen/internal/conversation"
	"github.com/csheth/lumen/internal/layout"
	"github.com/csheth/lumen/internal/simplify"
)

// Config is the complete lumen configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Reader  ReaderConfig  `toml:"reader"`
	Layout  LayoutConfig  `toml:"layout"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
}

// BackendConfig points the reader at the generation and dictionary services.
type BackendConfig struct {
	Endpoint      string        `toml:"endpoint"`
	DictionaryURL string        `toml:"dictionary_url"`
	Timeout       time.Duration `toml:"timeout"`
}

// ReaderConfig tunes selection timing and scope budgets.
type ReaderConfig struct {
	SingleWordDelay time.Duration `toml:"single_word_delay"`
	MultiWordDelay  time.Duration `toml:"multi_word_delay"`
	ChapterBudget   int           `toml:"chapter_budget"`
	BookBudget      int           `toml:"book_budget"`
	ExcerptPolicy   string        `toml:"excerpt_policy"`
	PageSize        int           `toml:"page_size"`
}

// LayoutConfig holds the width used before any preference is saved.
type LayoutConfig struct {
	DefaultWidth float64 `toml:"default_width"`
}

// StorageConfig locates on-disk state.
type StorageConfig struct {
	Database    string `toml:"database"`
	ThreadsFile string `toml:"threads_file"`
	CacheDir    string `toml:"cache_dir"`
}

// LogConfig controls the file logger. The terminal belongs to the UI.
type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

// ServerConfig configures `lumen serve`.
type ServerConfig struct {
	Addr        string  `toml:"addr"`
	Rate        float64 `toml:"rate"`
	Burst       int     `toml:"burst"`
	Model       string  `toml:"model"`
	LLMEndpoint string  `toml:"llm_endpoint"`
}

// Default returns the built-in configuration.
func Default() *Config {
	state := stateDir()
	return &Config{
		Backend: BackendConfig{
			Endpoint:      "http://127.0.0.1:8787/api/simplify",
			DictionaryURL: simplify.DefaultDictionaryEndpoint,
			Timeout:       60 * time.Second,
		},
		Reader: ReaderConfig{
			SingleWordDelay: 200 * time.Millisecond,
			MultiWordDelay:  1000 * time.Millisecond,
			ChapterBudget:   conversation.DefaultChapterBudget,
			BookBudget:      conversation.DefaultBookBudget,
			ExcerptPolicy:   "head",
			PageSize:        1600,
		},
		Layout: LayoutConfig{DefaultWidth: layout.DefaultFraction},
		Storage: StorageConfig{
			Database:    filepath.Join(state, "library.db"),
			ThreadsFile: filepath.Join(state, "threads.json"),
		},
		Log: LogConfig{
			File:  filepath.Join(state, "lumen.log"),
			Level: "info",
		},
		Server: ServerConfig{
			Addr:  "127.0.0.1:8787",
			Rate:  2,
			Burst: 4,
		},
	}
}

// DefaultPath is ~/.config/lumen/config.toml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "lumen.toml")
	}
	return filepath.Join(dir, "lumen", "config.toml")
}

func stateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "lumen")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "lumen")
	}
	return filepath.Join(home, ".local", "state", "lumen")
}

// Load reads path (or DefaultPath when empty), then .env and the environment.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env only fills variables the shell has not already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.ApplyEnv()
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays LUMEN_* variables and the provider variables the
// generation server reads.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LUMEN_ENDPOINT"); v != "" {
		c.Backend.Endpoint = v
	}
	if v, ok := os.LookupEnv("LUMEN_DICTIONARY_URL"); ok {
		c.Backend.DictionaryURL = v
	}
	if v := os.Getenv("LUMEN_DB"); v != "" {
		c.Storage.Database = v
	}
	if v := os.Getenv("LUMEN_CACHE_DIR"); v != "" {
		c.Storage.CacheDir = v
	}
	if v := os.Getenv("LUMEN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LUMEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Backend.Timeout = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			c.Backend.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && c.Server.LLMEndpoint == "" {
		c.Server.LLMEndpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" && c.Server.Model == "" {
		c.Server.Model = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" && os.Getenv("OPENAI_API_KEY") != "" {
		c.Server.Model = v
	}
}

// Validate rejects settings the reader cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Backend.Timeout <= 0 {
		problems = append(problems, "backend.timeout must be positive")
	}
	if c.Reader.SingleWordDelay < 0 || c.Reader.MultiWordDelay < 0 {
		problems = append(problems, "reader delays must not be negative")
	}
	if c.Reader.ChapterBudget <= 0 || c.Reader.BookBudget <= 0 {
		problems = append(problems, "reader budgets must be positive")
	}
	switch strings.ToLower(c.Reader.ExcerptPolicy) {
	case "", "head", "window":
	default:
		problems = append(problems, fmt.Sprintf("reader.excerpt_policy %q must be head or window", c.Reader.ExcerptPolicy))
	}
	if c.Reader.PageSize <= 0 {
		problems = append(problems, "reader.page_size must be positive")
	}
	if w := c.Layout.DefaultWidth; w < layout.MinFraction || w > layout.MaxFraction {
		problems = append(problems, fmt.Sprintf("layout.default_width must be within [%.2f, %.2f]", layout.MinFraction, layout.MaxFraction))
	}
	if strings.TrimSpace(c.Storage.Database) == "" {
		problems = append(problems, "storage.database is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) expandPaths() {
	c.Storage.Database = expandHome(c.Storage.Database)
	c.Storage.ThreadsFile = expandHome(c.Storage.ThreadsFile)
	c.Storage.CacheDir = expandHome(c.Storage.CacheDir)
	c.Log.File = expandHome(c.Log.File)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
