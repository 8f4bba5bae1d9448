package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/DaniruKun/repcounter/config"
	"github.com/DaniruKun/repcounter/control"
	"github.com/DaniruKun/repcounter/emitter"
	"github.com/DaniruKun/repcounter/imgproc"
	"github.com/DaniruKun/repcounter/landmark"
	"github.com/DaniruKun/repcounter/motion"
	"github.com/DaniruKun/repcounter/session"
	"github.com/DaniruKun/repcounter/store"
	"github.com/DaniruKun/repcounter/utils"
)

const (
	keyDelayMs       = 10
	progressInterval = 200 * time.Millisecond
	shutdownTimeout  = 5 * time.Second
)

func runCount(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	filePath, _ := cmd.Flags().GetString("file")
	showGUI, _ := cmd.Flags().GetBool("gui")
	save, _ := cmd.Flags().GetBool("save")
	outDir, _ := cmd.Flags().GetString("out")
	cameraArg, _ := cmd.Flags().GetString("camera")
	landmarksPath, _ := cmd.Flags().GetString("landmarks")
	recordPath, _ := cmd.Flags().GetString("record")

	if cameraArg != "" {
		id, err := utils.ParseCameraID(cameraArg)
		if err != nil {
			return err
		}
		cfg.Camera.Device = id
	}
	// -f also takes a device index, as long as no file has that name.
	if filePath != "" && !utils.IsVideoFile(filePath) {
		if id, err := utils.ParseCameraID(filePath); err == nil {
			cfg.Camera.Device = id
			filePath = ""
		}
	}
	showGUI = showGUI || cfg.Display.Window

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector, err := openDetector(ctx, cfg, landmarksPath, recordPath, logger)
	if err != nil {
		return err
	}

	var sinks []session.Sink

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Warn("session history disabled", "error", err)
	} else if st != nil {
		defer st.Close()
		sinks = append(sinks, st)
	}

	var client mqtt.Client
	if cfg.MQTT.Broker != "" {
		client, err = emitter.Dial(cfg.MQTT, logger)
		if err != nil {
			logger.Warn("mqtt disabled", "error", err)
		} else {
			defer client.Disconnect(250)
			sinks = append(sinks, emitter.NewMQTTEmitter(client, cfg.MQTT, logger))
		}
	}

	displayCfg := imgproc.DisplayConfig{ShowGUI: showGUI, Title: cfg.Display.Title}
	if save {
		displayCfg.SavePath = utils.SavePath(outDir, filePath)
	}
	display := imgproc.NewDisplay(displayCfg, logger)
	defer display.Close()

	var frameTotal atomic.Int64
	opener := &imgproc.Opener{
		Config: imgproc.Config{
			Device:      cfg.Camera.Device,
			Width:       cfg.Camera.Width,
			Height:      cfg.Camera.Height,
			JPEGQuality: cfg.Camera.JPEGQuality,
		},
		OnVideo: func(v *imgproc.VideoFile) {
			frameTotal.Store(int64(v.FrameCount()))
			display.SetSaveFPS(v.FPS())
		},
	}

	controller := session.New(session.Options{
		Opener:   opener,
		Detector: detector,
		Classifier: motion.Classifier{
			MinVisibility:      cfg.Classifier.MinVisibility,
			LegsApartThreshold: cfg.Classifier.LegsApartThreshold,
		},
		Presenter:     display,
		Sinks:         sinks,
		DetectTimeout: cfg.Detector.Timeout,
		Logger:        logger,
	})
	defer func() {
		if err := controller.Dispose(); err != nil && !errors.Is(err, session.ErrDisposed) {
			logger.Warn("failed to dispose session", "error", err)
		}
	}()

	if client != nil {
		h := control.NewHandler(cfg.MQTT, client, controller, logger)
		if err := h.Start(ctx); err != nil {
			logger.Warn("control plane disabled", "error", err)
		} else {
			defer h.Stop()
		}
	}

	if filePath != "" {
		err = controller.LoadVideo(ctx, filePath)
	} else {
		err = controller.Start(ctx)
	}
	if err != nil && !showGUI {
		return err
	}

	switch {
	case showGUI:
		runWindow(ctx, controller, display, opener, filePath, logger)
	case filePath != "":
		runHeadlessVideo(ctx, controller, &frameTotal)
	default:
		<-ctx.Done()
	}

	stats := controller.PumpStats()
	final := controller.State()
	logger.Info("done",
		"rep_count", final.RepCount,
		"frames", stats.Frames,
		"misses", stats.Misses,
		"failures", stats.Failures,
	)
	fmt.Printf("Reps: %d\n", final.RepCount)
	return nil
}

// runWindow drives the preview window and its key bindings until quit.
func runWindow(ctx context.Context, c *session.Controller, d *imgproc.Display, o *imgproc.Opener, filePath string, logger *slog.Logger) {
	for ctx.Err() == nil {
		key := d.Show(c.State(), keyDelayMs)
		if key < 0 {
			continue
		}

		var err error
		switch key & 0xff {
		case imgproc.KeyStart:
			err = c.Start(ctx)
		case imgproc.KeyStop:
			err = c.Stop()
		case imgproc.KeyReset:
			err = c.Reset()
		case imgproc.KeyPause:
			if !o.PauseVideo() {
				logger.Info("no video to pause")
			}
		case imgproc.KeyLoad:
			if filePath != "" {
				err = c.LoadVideo(ctx, filePath)
			}
		case imgproc.KeyQuit, imgproc.KeyEsc:
			logger.Info("stopping processing")
			return
		}
		if err != nil {
			logger.Warn("command failed", "key", string(rune(key&0xff)), "error", err)
		}
	}
}

// runHeadlessVideo waits for the video to play through, showing progress.
func runHeadlessVideo(ctx context.Context, c *session.Controller, total *atomic.Int64) {
	bar := pb.StartNew(int(total.Load()))
	defer bar.Finish()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	done := c.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			bar.SetCurrent(int64(c.PumpStats().Frames))
			return
		case <-ticker.C:
			frames := int64(c.PumpStats().Frames)
			if frames > bar.Total() {
				bar.SetTotal(frames)
			}
			bar.SetCurrent(frames)
		}
	}
}

func openDetector(ctx context.Context, cfg *config.Config, landmarksPath, recordPath string, logger *slog.Logger) (session.Detector, error) {
	if landmarksPath != "" {
		r, err := landmark.LoadReplay(landmarksPath)
		if err != nil {
			return nil, err
		}
		logger.Info("replaying recorded landmarks", "path", landmarksPath, "frames", r.Len())
		return r, nil
	}

	// The worker outlives ctx so that Close can stop it cleanly.
	worker, err := landmark.StartPython(context.WithoutCancel(ctx), landmark.PythonConfig{
		Command: cfg.Detector.Command,
		Args:    cfg.Detector.Args,
		Options: cfg.Detector.Options,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	if recordPath == "" {
		return worker, nil
	}

	f, err := os.Create(recordPath)
	if err != nil {
		worker.Close()
		return nil, fmt.Errorf("failed to create landmark recording: %w", err)
	}
	logger.Info("recording landmarks", "path", recordPath)
	return landmark.NewRecorder(worker, f), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch {
	case cfg.Storage.PostgresDSN != "":
		if err := store.InitSchema(ctx, cfg.Storage.PostgresDSN); err != nil {
			return nil, err
		}
		pg, err := store.OpenPostgres(ctx, cfg.Storage.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case cfg.Storage.JSONDir != "":
		return store.NewJSONStore(cfg.Storage.JSONDir, logger), nil
	default:
		return nil, nil
	}
}
