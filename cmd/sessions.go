package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List past counting sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("no storage configured: set storage.postgres_dsn or storage.json_dir")
		}
		defer st.Close()

		sessions, err := st.Sessions(cmd.Context(), limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tSOURCE\tREPS\tRESETS\tDURATION\tSTATUS")
		for _, s := range sessions {
			source := s.Source
			if s.Path != "" {
				source = s.Path
			}
			duration := "-"
			if s.EndedAt != nil {
				duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				s.StartedAt.Local().Format("2006-01-02 15:04"), source, s.Reps, s.Resets, duration, s.Status)
		}
		return w.Flush()
	},
}

func init() {
	sessionsCmd.Flags().Int("limit", 20, "Number of sessions to show")
	rootCmd.AddCommand(sessionsCmd)
}
