package embedjs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cryguy/embedjs/internal/modules"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// PathEnv names the environment variable holding extra default module
// directories, separated like PATH.
const PathEnv = "EMBEDJS_PATH"

// validate is shared; building a validator is expensive.
var validate = validator.New()

// Config holds everything an Env needs at startup.
type Config struct {
	// ModuleDirs are the process-wide default module directories.
	ModuleDirs []string `yaml:"module_dirs" validate:"dive,required"`
	// BaseDir anchors relative requires made from the top level.
	BaseDir    string   `yaml:"base_dir" validate:"required"`
	Extensions []string `yaml:"extensions" validate:"dive,startswith=."`

	MemoryLimitMB   int `yaml:"memory_limit_mb" validate:"gte=0"`
	MaxRequireDepth int `yaml:"max_require_depth" validate:"gte=0"`

	// StrictScopes panics when a scope other than the current one is
	// closed instead of unwinding to it.
	StrictScopes     bool `yaml:"strict_scopes"`
	BuiltinShadowing bool `yaml:"builtin_shadowing"`
	// Builtins restricts the built-in modules loaded at startup. Empty
	// means all registered built-ins.
	Builtins []string `yaml:"builtins" validate:"dive,required"`

	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns the configuration used when nothing is loaded.
func DefaultConfig() Config {
	return Config{
		BaseDir:         ".",
		Extensions:      append([]string(nil), modules.DefaultExtensions...),
		MemoryLimitMB:   64,
		MaxRequireDepth: 256,
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// defaultDirs returns ModuleDirs followed by the entries of EMBEDJS_PATH.
func (c Config) defaultDirs() []string {
	dirs := append([]string(nil), c.ModuleDirs...)
	for _, d := range filepath.SplitList(os.Getenv(PathEnv)) {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}
