// Package configs contains the logic to obtain app configuration from a file or the environment
package configs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "embed" // used to embed the default application config file.

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var log = logrus.WithField("component", "configs")

//go:embed lanmic.toml
var defaultConfigFile []byte

// InitConfig loads the embedded defaults into v, then layers the config file and the
// environment on top. A missing file is created from the defaults.
func InitConfig(v *viper.Viper, file string) error {
	if file == "" {
		panic("dev error, InitConfig should always be passed a valid config filepath")
	}
	v.SetConfigType("toml")

	// allow env vars to override config file
	v.SetEnvPrefix("lanmic")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewBuffer(defaultConfigFile)); err != nil {
		return fmt.Errorf("error reading default embedded config: %w", err)
	}
	v.SetConfigFile(file)

	// if config file does not exist, create it with the embedded default config
	if _, err := os.Stat(file); err != nil {
		log.WithField("file", file).Info("config file not found, writing defaults")
		if err := os.WriteFile(file, defaultConfigFile, 0o600); err != nil {
			return fmt.Errorf("error writing default config: %w", err)
		}
		return nil
	}

	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetConfigDir obtains the configuration directory in a cross-platform manner,
// always respecting the XDG_CONFIG_HOME env var, using standard defaults on all OS's,
// but overriding to ~/.config on macOS
func GetConfigDir() string {
	var xdgConfigHome string
	if runtime.GOOS == "darwin" && os.Getenv("XDG_CONFIG_HOME") == "" {
		home, _ := os.UserHomeDir()
		xdgConfigHome = filepath.Join(home, ".config") // override for mac
	} else {
		xdgConfigHome = xdg.ConfigHome
	}

	appConfigDir := filepath.Join(xdgConfigHome, "lanmic")
	if err := os.MkdirAll(appConfigDir, 0o750); err != nil {
		log.WithError(err).WithField("dir", appConfigDir).Fatal("error creating application config directory")
	}
	return appConfigDir
}

// PersistTargetToConfig stores host as the default send target in the config file,
// leaving every other setting as it was.
func PersistTargetToConfig(filename, host string) error {
	var config map[string]any

	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.New("config file not found! developer error")
	}

	// loads entire config
	if err := toml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if config == nil {
		config = map[string]any{}
	}
	send, _ := config["send"].(map[string]any)
	if send == nil {
		send = map[string]any{}
	}
	send["target"] = host
	config["send"] = send

	data, err = toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling error: %w", err)
	}

	return os.WriteFile(filename, data, 0o600)
}

// ConfigureLogging sets the logrus level from --debug or log.level.
func ConfigureLogging(v *viper.Viper) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if v.GetBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
		return nil
	}
	level, err := logrus.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("error parsing log.level: %w", err)
	}
	logrus.SetLevel(level)
	return nil
}
