package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gregriff/lanmic/internal/dal"
	"github.com/gregriff/lanmic/internal/db"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past receiver runs and their link quality",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	flags := historyCmd.Flags()
	flags.Int("limit", 20, "number of runs to show")
	flags.String("run", "", "show every stats sample of one run")
	flags.Duration("prune", 0, "delete runs older than this, e.g. 720h")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	path := viper.GetString("history.path")
	if path == "" {
		path = db.DefaultPath()
	}

	ctx, stop := signalContext()
	defer stop()

	conn, err := db.Open(ctx, path)
	if err != nil {
		return err
	}
	defer closeDB(conn)

	flags := cmd.Flags()
	out := cmd.OutOrStdout()

	if age, _ := flags.GetDuration("prune"); age > 0 {
		n, err := dal.PruneRuns(ctx, conn, time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %d runs\n", n)
		return nil
	}

	if id, _ := flags.GetString("run"); id != "" {
		samples, err := dal.ListSamples(ctx, conn, id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSESSION\tPACKETS\tLOSS%\tJITTER ms\tDELAY ms\tDEPTH")
		for _, s := range samples {
			fmt.Fprintf(w, "%s\t%08x\t%d\t%d\t%d\t%d\t%d\n", s.At.Format(time.TimeOnly), s.Session,
				s.Packets, s.Stats.LossPercent, s.Stats.JitterMs, s.Stats.DelayMs, s.TargetDepth)
		}
		return w.Flush()
	}

	limit, _ := flags.GetInt("limit")
	runs, err := dal.ListRuns(ctx, conn, limit)
	if err != nil {
		return err
	}
	return printRuns(out, runs)
}

func printRuns(out io.Writer, runs []dal.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tLISTEN\tMODE\tSAMPLES\tAVG LOSS%\tMAX JITTER ms\tMAX DELAY ms")
	for _, r := range runs {
		duration := "-"
		if !r.EndedAt.IsZero() {
			duration = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.1f\t%d\t%d\n", r.ID, r.StartedAt.Format(time.DateTime),
			duration, r.Listen, r.JitterMode, r.Samples, r.AvgLoss, r.MaxJitter, r.MaxDelayMs)
	}
	return w.Flush()
}
