package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/local/pdfocr/internal/config"
	"github.com/local/pdfocr/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status RUN_ID",
	Short: "Show the state of a run recorded in Redis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Checkpoint.RedisURL == "" {
			return &config.Error{Field: "REDIS_URL", Message: "run status requires a Redis checkpoint store"}
		}
		ctx := cmd.Context()
		rdb, err := store.Connect(ctx, cfg.Checkpoint.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		runID := args[0]
		st, ok, err := store.NewRedisStatus(rdb, cfg.Checkpoint.TTL).Get(ctx, runID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no status recorded for run " + runID)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:      %s\n", runID)
		meta, ok, err := store.NewPageStore(rdb, cfg.Checkpoint.TTL).GetMeta(ctx, runID)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(out, "PDF:      %s (%d pages, %s, start page %d)\n", meta.PDF, meta.TotalPages, meta.Mode, meta.StartPage)
		}
		fmt.Fprintf(out, "State:    %s\n", st.State)
		fmt.Fprintf(out, "Progress: %d%%\n", st.Progress)
		if st.Message != "" {
			fmt.Fprintf(out, "Message:  %s\n", st.Message)
		}
		if st.Start != nil {
			fmt.Fprintf(out, "Started:  %s\n", st.Start.Format(time.RFC3339))
		}
		if st.End != nil {
			fmt.Fprintf(out, "Ended:    %s\n", st.End.Format(time.RFC3339))
			if st.Start != nil {
				fmt.Fprintf(out, "Duration: %s\n", st.End.Sub(*st.Start).Round(time.Second))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
