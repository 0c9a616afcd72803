package cmd

import (
	"context"
	"database/sql"

	"github.com/gregriff/lanmic/configs"
	"github.com/gregriff/lanmic/internal/audio"
	"github.com/gregriff/lanmic/internal/codec"
	"github.com/gregriff/lanmic/internal/dal"
	"github.com/gregriff/lanmic/internal/db"
	"github.com/gregriff/lanmic/internal/receiver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Play a remote microphone on this machine",
	Args:  cobra.NoArgs,
	RunE:  runReceive,
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	flags := receiveCmd.Flags()
	flags.String("listen", ":48750", "UDP address to listen on")
	flags.String("jitter-mode", "stable", "low-latency, stable or ultra-stable")
	flags.Duration("force-start", receiver.DefaultForceStart, "start output after this long even if the prebuffer is not full")
	flags.String("device", "", "playback device name (substring match); empty for the default")
	flags.Float64("gain", 1, "gain applied after the signal chain")
	flags.Bool("processing", true, "enable AGC, noise gate and soft clipping")
	flags.Bool("history", true, "record stats samples in the session history")
	flags.Bool("meter", false, "log input and output levels")
	flags.Bool("check-tone", false, "play a 1 kHz check tone on the output after starting")
	flags.String("loopback-device", "", "capture device hearing the output; with --check-tone, verify the tone came back")

	_ = viper.BindPFlag("receive.listen", flags.Lookup("listen"))
	_ = viper.BindPFlag("receive.jitter-mode", flags.Lookup("jitter-mode"))
	_ = viper.BindPFlag("receive.force-start", flags.Lookup("force-start"))
	_ = viper.BindPFlag("receive.device", flags.Lookup("device"))
	_ = viper.BindPFlag("receive.gain", flags.Lookup("gain"))
	_ = viper.BindPFlag("receive.processing", flags.Lookup("processing"))
	_ = viper.BindPFlag("history.enabled", flags.Lookup("history"))
}

func runReceive(cmd *cobra.Command, _ []string) error {
	settings, err := configs.LoadReceive(viper.GetViper())
	if err != nil {
		return err
	}
	meter, _ := cmd.Flags().GetBool("meter")
	settings.Receiver.Events = consoleEvents("receive", meter)

	ctx, stop := signalContext()
	defer stop()

	if settings.History {
		recorder, closeHistory := openHistory(ctx, settings)
		defer closeHistory()
		if recorder != nil {
			settings.Receiver.Recorder = recorder
		}
	}

	playback, err := audio.OpenPlayback(settings.Device, settings.Receiver.JitterMode.SinkCapacity())
	if err != nil {
		return err
	}
	defer playback.Close()

	dec, err := codec.NewOpusDecoder()
	if err != nil {
		return err
	}

	r, err := receiver.New(settings.Receiver, playback, dec)
	if err != nil {
		return err
	}
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer r.Stop()

	if tone, _ := cmd.Flags().GetBool("check-tone"); tone {
		loopback, _ := cmd.Flags().GetString("loopback-device")
		if err := checkOutput(ctx, r, loopback); err != nil {
			log.WithError(err).Warn("output check failed")
		}
	}

	<-ctx.Done()
	return nil
}

// openHistory starts a history run. Failures only cost the history, never the receiver.
func openHistory(ctx context.Context, settings configs.Receive) (*dal.Recorder, func()) {
	conn, err := db.Open(ctx, settings.HistoryPath)
	if err != nil {
		log.WithError(err).Warn("session history unavailable")
		return nil, func() {}
	}
	recorder, err := dal.NewRecorder(ctx, conn, settings.Receiver.Listen, settings.Receiver.JitterMode.String())
	if err != nil {
		log.WithError(err).Warn("session history unavailable")
		conn.Close()
		return nil, func() {}
	}
	log.WithFields(logrus.Fields{"path": settings.HistoryPath, "run": recorder.RunID()}).Debug("recording history")

	return recorder, func() {
		// the signal context is gone by now
		if err := recorder.Close(context.Background()); err != nil {
			log.WithError(err).Warn("error closing history run")
		}
		closeDB(conn)
	}
}

func closeDB(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		log.WithError(err).Debug("error closing history db")
	}
}

func checkOutput(ctx context.Context, r *receiver.Receiver, loopbackDevice string) error {
	if loopbackDevice == "" {
		return r.PlayCheckTone()
	}

	probe, err := audio.OpenCapture(loopbackDevice)
	if err != nil {
		return err
	}
	defer probe.Close()

	pass, err := r.CheckLoopback(ctx, probe)
	if err != nil {
		return err
	}
	if !pass {
		log.WithField("device", loopbackDevice).Warn("check tone was not heard on the loopback device")
	}
	return nil
}
