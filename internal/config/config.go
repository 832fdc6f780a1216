package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Site    Site    `yaml:"site"`
	LLM     LLM     `yaml:"llm"`
	Article Article `yaml:"article"`
	Pool    Pool    `yaml:"pool"`
	HTTP    HTTP    `yaml:"http"`
	Output  Output  `yaml:"output"`
}

// Site describes the WordPress backend. Credentials are named by
// environment variable and resolved once at load time; no other
// component reads process environment directly.
type Site struct {
	BaseURL         string `yaml:"base_url"`
	Region          string `yaml:"region"`
	UsernameEnv     string `yaml:"username_env"`
	AppPasswordEnv  string `yaml:"app_password_env"`
	AuthorID        int    `yaml:"author_id"`
	CategoryID      int    `yaml:"category_id"`
	FeaturedMediaID int    `yaml:"featured_media_id"`
	FeedURL         string `yaml:"feed_url"`

	Username    string `yaml:"-"`
	AppPassword string `yaml:"-"`
}

type LLM struct {
	Provider         string `yaml:"provider"`
	OpenRouterModel  string `yaml:"openrouter_model"`
	OpenRouterKeyEnv string `yaml:"openrouter_key_env"`
	OpenAIModel      string `yaml:"openai_model"`
	OpenAIKeyEnv     string `yaml:"openai_key_env"`
	CustomURL        string `yaml:"custom_url"`
	CustomAuthEnv    string `yaml:"custom_auth_env"`

	OpenRouterKey string `yaml:"-"`
	OpenAIKey     string `yaml:"-"`
	CustomAuth    string `yaml:"-"`
}

type Article struct {
	Language string `yaml:"language"`
	MinWords int    `yaml:"min_words"`
	MaxWords int    `yaml:"max_words"`
}

type Pool struct {
	Target         int      `yaml:"target"`
	CreateLimit    int      `yaml:"create_limit"` // 0 = unlimited
	DailyLock      bool     `yaml:"daily_lock"`
	FallbackTopics []string `yaml:"fallback_topics"`
}

type HTTP struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	Retries        int `yaml:"retries"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

// ConfigDir returns the XDG config directory for draftpool.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "draftpool")
}

// DataDir returns the XDG data directory for draftpool.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "draftpool")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/draftpool/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'draftpool init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file, then resolves the
// environment-named secrets into the returned value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolveSecrets()
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Site: Site{
			Region:         "Albania",
			UsernameEnv:    "WP_USERNAME",
			AppPasswordEnv: "WP_APP_PASSWORD",
		},
		LLM: LLM{
			Provider:         "openrouter",
			OpenRouterModel:  "openai/gpt-4o-mini",
			OpenRouterKeyEnv: "OPENROUTER_API_KEY",
			OpenAIModel:      "gpt-4o-mini",
			OpenAIKeyEnv:     "OPENAI_API_KEY",
			CustomAuthEnv:    "CUSTOM_LLM_AUTH",
		},
		Article: Article{
			Language: "English",
			MinWords: 900,
			MaxWords: 1300,
		},
		Pool: Pool{
			Target:      30,
			CreateLimit: 5,
			DailyLock:   true,
		},
		HTTP: HTTP{
			TimeoutSeconds: 60,
			Retries:        3,
			BackoffSeconds: 5,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Site.BaseURL = strings.TrimRight(cfg.Site.BaseURL, "/")
	return cfg, nil
}

func (c *Config) resolveSecrets() {
	c.Site.Username = getenv(c.Site.UsernameEnv)
	c.Site.AppPassword = getenv(c.Site.AppPasswordEnv)
	c.LLM.OpenRouterKey = getenv(c.LLM.OpenRouterKeyEnv)
	c.LLM.OpenAIKey = getenv(c.LLM.OpenAIKeyEnv)
	c.LLM.CustomAuth = getenv(c.LLM.CustomAuthEnv)
}

// Validate checks the settings needed before any side effect happens.
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.Site.Username == "" || c.Site.AppPassword == "" {
		return fmt.Errorf("missing %s or %s", c.Site.UsernameEnv, c.Site.AppPasswordEnv)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG
// default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func getenv(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
