package natperf

import (
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/takehaya/natperf/pkg/logger"
	"github.com/takehaya/natperf/pkg/provider"
)

// EnvPrefix is the prefix of every environment variable LoadEnv reads,
// e.g. NATPERF_PROFILE or NATPERF_LOG_JSON.
const EnvPrefix = "natperf"

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type Config struct {
	LoggerConfig logger.Config `envconfig:"LOG"`

	// From For CLI Flags
	Profile     string           `envconfig:"PROFILE" default:"nat_10Ms"`
	Direction   int              `envconfig:"DIRECTION" default:"0"`
	OptionsFile string           `envconfig:"OPTIONS_FILE"`
	Options     provider.Options `ignored:"true"` // --opt で指定されたもの。ファイルより優先
	Format      string           `envconfig:"FORMAT" default:"json"`
	Count       uint64           `envconfig:"COUNT" default:"1000"`
	Parallelism int              `envconfig:"PARALLELISM" default:"0"` // 0 なら possible CPU 数
}

// LoadEnv returns the defaults overridden by NATPERF_* environment
// variables. Command line flags are applied on top by the caller.
func LoadEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to load environment")
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Profile == "" {
		return errors.New("profile is required")
	}
	if err := provider.ValidateDirection(c.Direction); err != nil {
		return err
	}
	if c.Format != FormatJSON && c.Format != FormatYAML {
		return errors.Errorf("format must be %q or %q, got %q", FormatJSON, FormatYAML, c.Format)
	}
	if c.Count == 0 {
		return errors.New("count must be positive")
	}
	if c.Parallelism < 0 {
		return errors.New("parallelism must not be negative")
	}
	return nil
}

// ProviderOptions merges the options file, if any, with Options.
func (c *Config) ProviderOptions() (provider.Options, error) {
	opts := provider.Options{}
	if c.OptionsFile != "" {
		fileOpts, err := LoadOptionsFile(c.OptionsFile)
		if err != nil {
			return nil, err
		}
		opts = fileOpts
	}
	return opts.Merge(c.Options), nil
}

// LoadOptionsFile reads provider options from a YAML mapping.
func LoadOptionsFile(path string) (provider.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read options file %s", path)
	}
	var opts provider.Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, errors.Wrapf(err, "failed to parse options file %s", path)
	}
	if opts == nil {
		opts = provider.Options{}
	}
	return opts, nil
}
