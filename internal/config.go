package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Source  SourceConfig      `yaml:"source"`
	Output  OutputConfig      `yaml:"output"`
	Convert ConvertConfig     `yaml:"convert"`
	Ledger  LedgerConfig      `yaml:"ledger"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	if err := c.Convert.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return validateRoots(c.Source.Path, c.Output.Path)
}

// validateRoots rejects an output vault that is the source vault or lives
// inside it; the watcher would otherwise react to its own writes.
func validateRoots(source, output string) error {
	src, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	out, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	rel, err := filepath.Rel(src, out)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("output: path %q must not be inside source %q", output, source)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the status server configuration. Port 0 disables it.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Enabled reports whether the status server should be started.
func (c *HTTPConfig) Enabled() bool {
	return c.Port > 0
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}

// SourceConfig points at the outline vault being converted.
type SourceConfig struct {
	Path string `yaml:"path"`
	// AssetsDir is relative to Path. Empty disables asset copying and the
	// missing-file check.
	AssetsDir string `yaml:"assets_dir"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.AssetsDir, validation.By(relativePath)),
	)
}

// OutputConfig describes the converted vault.
type OutputConfig struct {
	Path           string `yaml:"path"`
	AttachmentsDir string `yaml:"attachments_dir"`
	DryRun         bool   `yaml:"dry_run"`
	Report         bool   `yaml:"report"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.AttachmentsDir, validation.Required, validation.By(relativePath)),
	)
}

// ConvertConfig tunes the conversion itself.
type ConvertConfig struct {
	CategoryTag     string `yaml:"category_tag"`
	CategoryFolder  string `yaml:"category_folder"`
	PromoteTopLevel bool   `yaml:"promote_top_level"`
	Workers         int    `yaml:"workers"`
}

// Validate validates the conversion configuration. The category tag and
// folder must be set together.
func (c *ConvertConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.CategoryTag, validation.When(c.CategoryFolder != "", validation.Required)),
		validation.Field(&c.CategoryFolder,
			validation.When(c.CategoryTag != "", validation.Required),
			validation.By(relativePath)),
	); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if strings.ContainsAny(strings.TrimPrefix(c.CategoryTag, "#"), " \t#") {
		return fmt.Errorf("convert: category_tag %q must be a single tag", c.CategoryTag)
	}
	return nil
}

// Categorize reports whether category routing is configured.
func (c *ConvertConfig) Categorize() bool {
	return c.CategoryTag != "" && c.CategoryFolder != ""
}

// LedgerConfig holds the SQLite run ledger location. An empty path
// disables the ledger.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds status API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

func relativePath(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if filepath.IsAbs(s) || strings.HasPrefix(filepath.Clean(s), "..") {
		return errors.New("must be a path relative to its vault")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Source: SourceConfig{
			Path:      "./logseq",
			AssetsDir: "assets",
		},
		Output: OutputConfig{
			Path:           "./obsidian",
			AttachmentsDir: "assets",
			Report:         true,
		},
		Convert: ConvertConfig{
			Workers: 4,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
