package config

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/imdario/mergo"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	EnvVarPrefix = "INFLATE"

	DefaultConfigFile = "~/.inflate.toml"
	DefaultLogLevel   = "info"
	DefaultNumWorkers = 4

	MinNumWorkers = 1
	MaxNumWorkers = 64
)

var (
	// VERSION gets set during build
	VERSION = "0.0.0"
)

type Config struct {
	CLI  *CLI
	TOML *TOML
}

type TOML struct {
	Config *TOMLConfig `toml:"config"`
}

type TOMLConfig struct {
	LogLevel        string `toml:"log_level"`
	NumWorkers      int    `toml:"num_workers"`
	SkipCRC         bool   `toml:"skip_crc"`
	Overwrite       bool   `toml:"overwrite"`
	FailUnsupported bool   `toml:"fail_unsupported"`
}

// CLI holds the unzip command line.
type CLI struct {
	Archive    string `kong:"arg,help='Path to the ZIP archive',type='path'"`
	ConfigFile string `kong:"help='Path to the TOML config file',default='${config_file}',short='c'"`
	List       bool   `kong:"help='List entries and exit',short='l',xor='mode'"`
	JSON       bool   `kong:"help='Print the listing as JSON',short='j'"`
	Test       bool   `kong:"help='Decode and verify entries without writing them',short='t',xor='mode'"`
	OutputDir  string `kong:"help='Directory to extract into',default='.',short='o'"`
	Workers    int    `kong:"help='Number of concurrent entry decodes (overrides config.num_workers)',short='w'"`
	Overwrite  bool   `kong:"help='Overwrite existing files',short='f'"`

	DisableColor bool             `kong:"help='Disable color output',short='C'"`
	Debug        bool             `kong:"help='Enable debug output',short='d'"`
	Quiet        bool             `kong:"help='Disable showing pre/post output',short='q'"`
	Version      kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	// Internal bits
	Ctx *kong.Context `kong:"-"`
}

// InflateCLI holds the command line of the raw DEFLATE decoder.
type InflateCLI struct {
	Input  string `kong:"arg,help='Raw DEFLATE input file',type='existingfile'"`
	Output string `kong:"help='Output file (defaults to stdout)',short='o'"`

	Debug   bool             `kong:"help='Enable debug output',short='d'"`
	Version kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	// Internal bits
	Ctx *kong.Context `kong:"-"`
}

var defaultTOMLConfig = TOMLConfig{
	LogLevel:   DefaultLogLevel,
	NumWorkers: DefaultNumWorkers,
}

// NewConfig builds the unzip configuration from .env, the command line in
// args and the TOML config file it names.
func NewConfig(args []string) (*Config, error) {
	// Attempt to load .env
	_ = godotenv.Load(".env")

	cli, err := readCLIArgs(args)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	tomlConfig, err := readTOML(cli.ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	cfg := &Config{
		CLI:  cli,
		TOML: tomlConfig,
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewInflateConfig parses the inflate command line in args.
func NewInflateConfig(args []string) (*InflateCLI, error) {
	_ = godotenv.Load(".env")

	cli := &InflateCLI{}

	parser, err := newParser(cli, "inflate", "Decode a raw DEFLATE stream")
	if err != nil {
		return nil, err
	}

	cli.Ctx, err = parser.Parse(args)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	if cli.Output != "" {
		if cli.Output, err = homedir.Expand(cli.Output); err != nil {
			return nil, errors.Wrap(err, "error expanding output path")
		}
	}

	return cli, nil
}

// Workers is the effective decode concurrency.
func (c *Config) Workers() int {
	if c.CLI.Workers > 0 {
		return c.CLI.Workers
	}
	return c.TOML.Config.NumWorkers
}

// LogLevel is the effective log level.
func (c *Config) LogLevel() logrus.Level {
	if c.CLI.Debug {
		return logrus.DebugLevel
	}

	// validated by validateTOMLConfig
	level, _ := logrus.ParseLevel(c.TOML.Config.LogLevel)
	return level
}

// Validate checks the parsed command line and the merged TOML config.
func Validate(c *Config) error {
	if err := validateCLIArgs(c.CLI); err != nil {
		return errors.Wrap(err, "error validating CLI args")
	}

	if err := validateTOML(c.TOML); err != nil {
		return errors.Wrap(err, "error validating toml config")
	}

	return nil
}

func setTOMLDefaults(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	if t.Config == nil {
		t.Config = &TOMLConfig{}
	}

	if err := mergo.Merge(t.Config, defaultTOMLConfig); err != nil {
		return errors.Wrap(err, "error merging [config] defaults")
	}

	return nil
}

func validateTOML(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	// Validate [config]
	if err := validateTOMLConfig(t.Config); err != nil {
		return errors.Wrap(err, "config error(s)")
	}

	return nil
}

func validateTOMLConfig(c *TOMLConfig) error {
	if c == nil {
		return errors.New("config cannot be empty")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Errorf("config.log_level %s is invalid", c.LogLevel)
	}

	if c.NumWorkers < MinNumWorkers || c.NumWorkers > MaxNumWorkers {
		return errors.Errorf("config.num_workers must be between %d and %d", MinNumWorkers, MaxNumWorkers)
	}

	return nil
}

func validateCLIArgs(cli *CLI) error {
	if cli == nil {
		return errors.New("config cannot be nil")
	}

	if cli.Archive == "" {
		return errors.New("archive cannot be empty")
	}

	if cli.Workers < 0 || cli.Workers > MaxNumWorkers {
		return errors.Errorf("workers must be between %d and %d", MinNumWorkers, MaxNumWorkers)
	}

	info, err := os.Stat(cli.Archive)
	if os.IsNotExist(err) {
		return errors.Errorf("archive %s does not exist", cli.Archive)
	}

	if err != nil {
		return errors.Wrapf(err, "unable to stat archive %s", cli.Archive)
	}

	if info.IsDir() {
		return errors.Errorf("archive %s is a directory", cli.Archive)
	}

	return nil
}

func readCLIArgs(args []string) (*CLI, error) {
	cli := &CLI{}

	parser, err := newParser(cli, "unzip", "List, test and extract ZIP archives")
	if err != nil {
		return nil, err
	}

	cli.Ctx, err = parser.Parse(args)
	if err != nil {
		return nil, err
	}

	for _, p := range []*string{&cli.ConfigFile, &cli.OutputDir} {
		if *p, err = homedir.Expand(*p); err != nil {
			return nil, errors.Wrap(err, "error expanding path")
		}
	}

	return cli, nil
}

func newParser(cli interface{}, name, description string) (*kong.Kong, error) {
	parser, err := kong.New(cli,
		kong.Name(name),
		kong.Description(description),
		kong.UsageOnError(),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version":     VERSION,
			"config_file": DefaultConfigFile,
		})
	if err != nil {
		return nil, errors.Wrap(err, "error creating CLI parser")
	}

	return parser, nil
}

// readTOML loads file, falling back to defaults when file does not exist.
func readTOML(file string) (*TOML, error) {
	tomlConfig := &TOML{}

	// Attempt to load file
	data, err := os.ReadFile(file)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "error reading file")
	}

	if err == nil {
		if err := toml.Unmarshal(data, tomlConfig); err != nil {
			return nil, errors.Wrap(err, "error parsing TOML config")
		}
	}

	// Set defaults
	if err := setTOMLDefaults(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error setting TOML defaults")
	}

	return tomlConfig, nil
}
