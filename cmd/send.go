package cmd

import (
	"fmt"

	"github.com/gregriff/lanmic/configs"
	"github.com/gregriff/lanmic/internal/audio"
	"github.com/gregriff/lanmic/internal/codec"
	"github.com/gregriff/lanmic/internal/sender"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sendCmd = &cobra.Command{
	Use:   "send [host]",
	Short: "Stream this machine's microphone to a receiver",
	Long: `Capture the microphone and stream it to the receiver on host. The host may carry a
port ("studio.local:5000"); without one, send.port is used. Without a host, send.target
from the config file is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	flags := sendCmd.Flags()
	flags.Int("port", 48750, "receiver port when the host does not name one")
	flags.String("mode", "opus", "wire format: opus or pcm")
	flags.String("quality", "standard", "opus quality: low, standard, high or ultra")
	flags.String("device", "", "capture device name (substring match); empty for the default")
	flags.Float64("gain", 1, "gain applied after the signal chain")
	flags.Bool("processing", true, "enable AGC, noise gate and soft clipping")
	flags.Bool("tone", false, "send a 1 kHz test tone instead of the microphone")
	flags.Bool("meter", false, "log input and output levels")
	flags.Bool("save", false, "remember host as the default target")

	_ = viper.BindPFlag("send.port", flags.Lookup("port"))
	_ = viper.BindPFlag("send.mode", flags.Lookup("mode"))
	_ = viper.BindPFlag("send.quality", flags.Lookup("quality"))
	_ = viper.BindPFlag("send.device", flags.Lookup("device"))
	_ = viper.BindPFlag("send.gain", flags.Lookup("gain"))
	_ = viper.BindPFlag("send.processing", flags.Lookup("processing"))
	_ = viper.BindPFlag("send.test-tone", flags.Lookup("tone"))
}

func runSend(cmd *cobra.Command, args []string) error {
	var host string
	if len(args) > 0 {
		host = args[0]
	}
	settings, err := configs.LoadSend(viper.GetViper(), host)
	if err != nil {
		return err
	}
	meter, _ := cmd.Flags().GetBool("meter")
	settings.Sender.Events = consoleEvents("send", meter)

	ctx, stop := signalContext()
	defer stop()

	capture, err := audio.OpenCapture(settings.Device)
	if err != nil {
		return err
	}
	defer capture.Close()

	var enc codec.Encoder
	if settings.Sender.Mode == codec.ModeOpus {
		if enc, err = codec.NewOpusEncoder(settings.Quality); err != nil {
			return err
		}
	}

	s, err := sender.New(settings.Sender, capture, enc)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	if save, _ := cmd.Flags().GetBool("save"); save && host != "" {
		if err := configs.PersistTargetToConfig(ConfigFile, host); err != nil {
			log.WithError(err).Warn("error saving target")
		} else {
			log.WithField("target", host).Info("saved default target")
		}
	}

	<-s.Done()
	s.Stop()

	if ctx.Err() == nil {
		// the loops ended on their own; only a lost capture device does that
		return fmt.Errorf("sender stopped: %w", sender.ErrCaptureStopped)
	}
	return nil
}
