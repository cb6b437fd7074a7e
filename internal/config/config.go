// Package config loads verifier settings from verifier.yml, .env and VERIFIER_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config file is given and it exists
const DefaultFile = "verifier.yml"

// envPrefix namespaces environment overrides
const envPrefix = "VERIFIER_"

// Config is the complete verifier configuration
type Config struct {
	Repositories             []RepositoryConfig `yaml:"repositories" validate:"required,min=1,dive"`
	ModulesDir               string             `yaml:"modules_dir" validate:"required"`
	Concurrency              int                `yaml:"concurrency" validate:"min=1,max=256"`
	UnitTimeout              time.Duration      `yaml:"unit_timeout" validate:"min=0"`
	Retry                    RetryConfig        `yaml:"retry"`
	HTTP                     HTTPConfig         `yaml:"http"`
	RequireChecksum          bool               `yaml:"require_checksum"`
	ArtifactCacheSize        int                `yaml:"artifact_cache_size" validate:"min=0"`
	DefaultExcludeQualifiers []string           `yaml:"default_exclude_qualifiers" validate:"dive,oneof=snapshot alpha beta milestone rc release post"`
	Signature                SignatureConfig    `yaml:"signature"`
	Verifier                 VerifierConfig     `yaml:"verifier"`
	Output                   OutputConfig       `yaml:"output"`
	Metrics                  MetricsConfig      `yaml:"metrics"`
	Log                      LogConfig          `yaml:"log"`
}

// RepositoryConfig is one artifact repository, in priority order
type RepositoryConfig struct {
	Name     string `yaml:"name" validate:"required"`
	URL      string `yaml:"url" validate:"required,repourl"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Endpoint and Region apply to s3:// repositories
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	UseSSL   *bool  `yaml:"use_ssl"`
}

// RetryConfig bounds retries of transient repository failures
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries" validate:"min=0,max=10"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"min=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
}

// HTTPConfig tunes remote repository requests
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout" validate:"min=0"`
	UserAgent string        `yaml:"user_agent"`
}

// SignatureConfig enables .asc verification when any key source is set
type SignatureConfig struct {
	KeyringFiles []string `yaml:"keyring_files"`
	KeysURL      string   `yaml:"keys_url" validate:"omitempty,url"`
}

// Enabled reports whether signatures must be checked
func (s SignatureConfig) Enabled() bool {
	return len(s.KeyringFiles) > 0 || s.KeysURL != ""
}

// VerifierConfig describes the external verification command
type VerifierConfig struct {
	Command            string            `yaml:"command"`
	Args               []string          `yaml:"args"`
	InstrumentationJar string            `yaml:"instrumentation_jar"`
	AgentJar           string            `yaml:"agent_jar"`
	WorkDir            string            `yaml:"work_dir"`
	Env                map[string]string `yaml:"env"`
	KeepWorkDirs       bool              `yaml:"keep_work_dirs"`
}

// OutputConfig names the report files; empty disables a file
type OutputConfig struct {
	PassesFile   string `yaml:"passes_file"`
	FailuresFile string `yaml:"failures_file"`
	JSONReport   string `yaml:"json_report"`
}

// MetricsConfig enables the Prometheus textfile export
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LogConfig configures the logger; empty fields fall back to LOG_LEVEL and LOG_FORMAT
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error off disabled"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Default returns the built-in configuration: Maven Central, 4 workers,
// 5 minute unit timeout, 3 retries backing off from 1s to 32s
func Default() *Config {
	return &Config{
		Repositories: []RepositoryConfig{
			{Name: "central", URL: "https://repo1.maven.org/maven2"},
		},
		ModulesDir:  "modules",
		Concurrency: 4,
		UnitTimeout: 5 * time.Minute,
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     32 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:   5 * time.Minute,
			UserAgent: "instrumentation-verifier/1.0",
		},
		ArtifactCacheSize:        256,
		DefaultExcludeQualifiers: []string{"snapshot"},
		Output: OutputConfig{
			PassesFile:   "passes.txt",
			FailuresFile: "failures.txt",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file (when path is
// not empty), then .env and VERIFIER_* overrides. The result is validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.expandSecrets()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePath returns explicit when set, else DefaultFile when it exists
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile
	}
	return ""
}

func (c *Config) loadFile(path string) error {
	//nolint:gosec // G304: path is the operator's config file
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides scalar settings from VERIFIER_* variables.
// VERIFIER_REPOSITORIES replaces the repository list with comma-separated URLs.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("REPOSITORIES"); ok {
		c.Repositories = nil
		for i, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Repositories = append(c.Repositories, RepositoryConfig{Name: fmt.Sprintf("repo-%d", i+1), URL: u})
			}
		}
	}
	if v, ok := get("MODULES_DIR"); ok {
		c.ModulesDir = v
	}
	if v, ok := get("CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sCONCURRENCY %q: %w", envPrefix, v, err)
		}
		c.Concurrency = n
	}
	if v, ok := get("UNIT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sUNIT_TIMEOUT %q: %w", envPrefix, v, err)
		}
		c.UnitTimeout = d
	}
	if v, ok := get("MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_RETRIES %q: %w", envPrefix, v, err)
		}
		c.Retry.MaxRetries = n
	}
	if v, ok := get("REQUIRE_CHECKSUM"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sREQUIRE_CHECKSUM %q: %w", envPrefix, v, err)
		}
		c.RequireChecksum = b
	}
	if v, ok := get("COMMAND"); ok {
		c.Verifier.Command = v
	}
	if v, ok := get("INSTRUMENTATION_JAR"); ok {
		c.Verifier.InstrumentationJar = v
	}
	if v, ok := get("AGENT_JAR"); ok {
		c.Verifier.AgentJar = v
	}
	if v, ok := get("METRICS_TEXTFILE"); ok {
		c.Metrics.Textfile = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(v)
	}
	return nil
}

// expandSecrets resolves ${VAR} references in repository credentials
func (c *Config) expandSecrets() {
	for i := range c.Repositories {
		r := &c.Repositories[i]
		r.Username = os.ExpandEnv(r.Username)
		r.Password = os.ExpandEnv(r.Password)
	}
}

// Validate checks the configuration with struct tags plus cross-field rules
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("repourl", validRepositoryURL); err != nil {
		return fmt.Errorf("failed to register validation: %w", err)
	}
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := map[string]bool{}
	for _, r := range c.Repositories {
		if seen[r.Name] {
			return fmt.Errorf("invalid configuration: duplicate repository name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// validRepositoryURL accepts http(s)://, s3://, file:// and plain paths
func validRepositoryURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if !strings.Contains(raw, "://") {
		return raw != ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "s3":
		return u.Host != ""
	case "file":
		return u.Path != ""
	default:
		return false
	}
}
