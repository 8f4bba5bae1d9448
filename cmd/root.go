/*
Copyright © 2022 Daniils Petrovs <thedanpetrov@gmail.com>

*/
package cmd

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/DaniruKun/repcounter/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "repcounter",
	Short: "Repcounter",
	Long: `Counts jumping jacks from a webcam or a video file.

Every frame is sent to a pose landmark worker. A repetition is counted each
time both arms come back down after being raised above the shoulders.

In the preview window: s starts the webcam, x stops, r resets the count,
p pauses a video, l plays it again from the start and q or ESC quits.`,
	SilenceUsage: true,
	RunE:         runCount,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (YAML)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every frame's arm state")

	rootCmd.Flags().StringP("file", "f", "", "Video file to count repetitions in, or a camera index")
	rootCmd.Flags().BoolP("gui", "g", false, "Show GUI with preview")
	rootCmd.Flags().BoolP("save", "s", false, "Save annotated video")
	rootCmd.Flags().String("out", ".", "Directory for the annotated video")
	rootCmd.Flags().String("camera", "", "Camera device index (overrides config)")
	rootCmd.Flags().String("landmarks", "", "Replay recorded landmarks instead of running the worker")
	rootCmd.Flags().String("record", "", "Record the worker's landmarks to this file")
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
}

// loadConfig sets up logging and reads the config file named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	logger := newLogger(debug)
	slog.SetDefault(logger)

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
