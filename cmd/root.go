// Package cmd contains the CLI setup and commands exposed to the user
package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gregriff/lanmic/configs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logrus.WithField("component", "cmd")

var ConfigFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lanmic",
	Short: "Stream a microphone to another machine on the LAN over UDP",
	Long: `lanmic captures a microphone on one machine and plays it on another.
Run "lanmic receive" on the machine with the speakers and "lanmic send <host>" on the one
with the microphone.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func init() {
	// deferring this allows user to override config path with cli option
	cobra.OnInitialize(func() {
		if err := configs.InitConfig(viper.GetViper(), ConfigFile); err != nil {
			log.WithError(err).Fatal("error loading config")
		}
		if err := configs.ConfigureLogging(viper.GetViper()); err != nil {
			log.WithError(err).Fatal("error configuring logging")
		}
		log.WithField("file", ConfigFile).Debug("using config file")
	})

	defaultConfigFilePath := filepath.Join(configs.GetConfigDir(), "lanmic.toml")
	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", defaultConfigFilePath, "config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Print debugging information")

	// expose to application via viper
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
