// Package config loads the debugger settings from $HOME/.deet.yaml and
// DEET_* environment variables.
package config

import (
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configName = ".deet"
	envPrefix  = "DEET"
)

// Keys understood in the config file.
const (
	KeyPrompt        = "prompt"
	KeyHistoryFile   = "history-file"
	KeyMaxFrames     = "max-frames"
	KeyMaxFrameSize  = "max-frame-size"
	KeyRootFunctions = "root-functions"
	KeyDisassSyntax  = "disass-syntax"
	KeyDisassCount   = "disass-count"
)

// Config holds every option that can be set through the config file.
type Config struct {
	// Prompt printed by the interactive shell.
	Prompt string `mapstructure:"prompt" yaml:"prompt"`
	// HistoryFile is where the shell persists command history, "~" is expanded.
	HistoryFile string `mapstructure:"history-file" yaml:"history-file"`

	// MaxFrames bounds the number of frames a backtrace walks.
	MaxFrames int `mapstructure:"max-frames" yaml:"max-frames"`
	// MaxFrameSize is the largest distance accepted between two
	// consecutive saved frame pointers.
	MaxFrameSize uint64 `mapstructure:"max-frame-size" yaml:"max-frame-size"`
	// RootFunctions end a backtrace when reached.
	RootFunctions []string `mapstructure:"root-functions" yaml:"root-functions"`

	// DisassSyntax is one of go, gnu or intel.
	DisassSyntax string `mapstructure:"disass-syntax" yaml:"disass-syntax"`
	// DisassCount is the default number of instructions disass prints.
	DisassCount int `mapstructure:"disass-count" yaml:"disass-count"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPrompt, "(deet) ")
	v.SetDefault(KeyHistoryFile, "~/.deet_history")
	v.SetDefault(KeyMaxFrames, 64)
	v.SetDefault(KeyMaxFrameSize, 8<<20)
	v.SetDefault(KeyRootFunctions, []string{"main", "main.main"})
	v.SetDefault(KeyDisassSyntax, "gnu")
	v.SetDefault(KeyDisassCount, 10)
}

// Init points v at cfgFile, or at $HOME/.deet.yaml when cfgFile is empty,
// and reads it. A missing default config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "find home directory")
		}
		v.AddConfigPath(home)
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return errors.Wrapf(err, "read config %s", v.ConfigFileUsed())
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	history, err := homedir.Expand(c.HistoryFile)
	if err != nil {
		return nil, errors.Wrapf(err, "expand %s", KeyHistoryFile)
	}
	c.HistoryFile = history

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.MaxFrames <= 0 {
		return errors.Errorf("%s must be positive, got %d", KeyMaxFrames, c.MaxFrames)
	}
	if c.MaxFrameSize == 0 {
		return errors.Errorf("%s must be positive", KeyMaxFrameSize)
	}
	if c.DisassCount <= 0 {
		return errors.Errorf("%s must be positive, got %d", KeyDisassCount, c.DisassCount)
	}
	switch c.DisassSyntax {
	case "go", "gnu", "intel":
	default:
		return errors.Errorf("%s must be one of go, gnu, intel, got %q", KeyDisassSyntax, c.DisassSyntax)
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
