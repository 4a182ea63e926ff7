package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider      string   `yaml:"provider"`
	APIKey        string   `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	BaseURL       string   `yaml:"providerBaseURL" envconfig:"PROVIDER_BASE_URL"`
	EmbedModel    string   `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	CompleteModel string   `yaml:"providerCompleteModel" envconfig:"PROVIDER_COMPLETION_MODEL"`
	ProjectID     string   `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location      string   `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim           int      `yaml:"providerDim" envconfig:"EMBED_DIM"`
	Database      string   `yaml:"database" envconfig:"DB_URL"`
	DocsRoot      string   `yaml:"docsRoot" split_words:"true"`
	Categories    []string `yaml:"categories"`
	TargetLang    string   `yaml:"targetLang" split_words:"true"`

	ChunkSize       int           `yaml:"chunkSize" split_words:"true"`
	ChunkOverlap    int           `yaml:"chunkOverlap" split_words:"true"`
	SearchThreshold float64       `yaml:"searchThreshold" split_words:"true"`
	SearchLimit     int           `yaml:"searchLimit" split_words:"true"`
	ChatLimit       int           `yaml:"chatLimit" split_words:"true"`
	TargetLag       time.Duration `yaml:"targetLag" split_words:"true"`
	Workers         int           `yaml:"workers"`
	RateLimit       float64       `yaml:"rateLimit" split_words:"true"`

	LogLevel string            `yaml:"logLevel" split_words:"true"`
	Port     int               `yaml:"port"`
	Auth     AuthSpecification `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type AuthSpecification struct {
	Enabled   bool   `yaml:"enabled"`
	JwtSecret string `yaml:"jwtSecret" split_words:"true"`
}

const envPrefix = "DOCSEARCH"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/docsearch.yaml",
				"config/config.yaml",
				"./docsearch.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if err := validate(&cfg); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

func validate(c *Specification) error {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.SearchThreshold < -1 || c.SearchThreshold > 1 {
		return fmt.Errorf("search threshold must be in [-1, 1], got %v", c.SearchThreshold)
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("search limit must be positive, got %d", c.SearchLimit)
	}
	return nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Provider (e.g., stub, openai, vertexai)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-base-url", c.BaseURL, "Provider API base URL")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-completion-model", c.CompleteModel, "Provider completion model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")

	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")

	fs.String("db-url", c.Database, "Database URL (DSN); empty selects the in-memory store")
	fs.String("docs-root", c.DocsRoot, "Path to the documents directory")
	fs.String("target-lang", c.TargetLang, "Translation target language")

	fs.Int("chunk-size", c.ChunkSize, "Chunk size in runes")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Chunk overlap in runes")
	fs.Float64("search-threshold", c.SearchThreshold, "Minimum cosine similarity for search results")
	fs.Int("search-limit", c.SearchLimit, "Maximum search results")
	fs.Int("chat-limit", c.ChatLimit, "Chunks retrieved per chat answer")
	fs.Duration("target-lag", c.TargetLag, "Delay before new writes become searchable (memory store)")
	fs.Int("workers", c.Workers, "Concurrent ingestion workers")
	fs.Float64("rate-limit", c.RateLimit, "Annotation calls per second (0 = unlimited)")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require JWT authentication on the API")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-base-url", &c.BaseURL)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-completion-model", &c.CompleteModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)

	setInt("embed-dim", &c.Dim)

	setStr("db-url", &c.Database)
	setStr("docs-root", &c.DocsRoot)
	setStr("target-lang", &c.TargetLang)

	setInt("chunk-size", &c.ChunkSize)
	setInt("chunk-overlap", &c.ChunkOverlap)
	setFloat("search-threshold", &c.SearchThreshold)
	setInt("search-limit", &c.SearchLimit)
	setInt("chat-limit", &c.ChatLimit)
	if fs.Changed("target-lag") {
		v, _ := fs.GetDuration("target-lag")
		c.TargetLag = v
	}
	setInt("workers", &c.Workers)
	setFloat("rate-limit", &c.RateLimit)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)

	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
}

func setDefaults(c *Specification) {
	c.Provider = "stub"
	c.Location = "us-central1"
	c.Dim = 0
	c.Database = ""
	c.DocsRoot = "./docs"
	c.TargetLang = "en"
	c.Categories = []string{
		"product quality", "price", "customer service", "store environment",
		"shipping", "assortment", "usability", "freshness", "other",
	}
	c.ChunkSize = 300
	c.ChunkOverlap = 30
	c.SearchThreshold = 0.2
	c.SearchLimit = 5
	c.ChatLimit = 3
	c.TargetLag = 0
	c.Workers = 4
	c.RateLimit = 8
	c.LogLevel = "info"
	c.Port = 8080
	c.Auth.Enabled = false
}
