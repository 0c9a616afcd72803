package cmd

import (
	"github.com/gregriff/lanmic/internal"
	"github.com/gregriff/lanmic/internal/dsp"
	"github.com/gregriff/lanmic/internal/protocol"
	"github.com/sirupsen/logrus"
)

// consoleEvents reports pipeline events through the log. Levels are only shown with
// --meter since they arrive five times a second.
func consoleEvents(role string, meter bool) internal.Events {
	entry := log.WithField("role", role)
	events := internal.Events{
		Status:  func(s string) { entry.WithField("status", s).Info("status") },
		Warning: func(w string) {
			if w == "" {
				entry.Info("level warning cleared")
				return
			}
			entry.WithField("warning", w).Warn("level warning")
		},
		Error:   func(err error) { entry.WithError(err).Error("pipeline error") },
		Stats: func(s protocol.Stats) {
			entry.WithFields(logrus.Fields{
				"loss":   s.LossPercent,
				"jitter": s.JitterMs,
				"delay":  s.DelayMs,
			}).Debug("link stats")
		},
	}
	if meter {
		events.InputLevel = func(l dsp.Level) {
			entry.WithFields(logrus.Fields{"peak_db": l.PeakDb, "rms_db": l.RmsDb}).Info("in")
		}
		events.OutputLevel = func(l dsp.Level) {
			entry.WithFields(logrus.Fields{"peak_db": l.PeakDb, "rms_db": l.RmsDb}).Info("out")
		}
	}
	return events
}
