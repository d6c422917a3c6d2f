package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ayusman/handpilot/internal/capture"
	"github.com/ayusman/handpilot/internal/config"
	"github.com/ayusman/handpilot/internal/detector"
	"github.com/ayusman/handpilot/internal/display"
	"github.com/ayusman/handpilot/internal/logging"
	"github.com/ayusman/handpilot/internal/pilot"
	"github.com/ayusman/handpilot/internal/tello"
	"go.uber.org/zap"
)

func init() {
	// HighGUI must run on the main thread.
	runtime.LockOSThread()
}

func main() {
	fmt.Println("handpilot - Tello hand gesture control")

	path, err := config.DefaultPath()
	if err != nil {
		fatal("locate config", err)
	}
	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		fatal("load config", err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fatal("init logger", err)
	}
	defer log.Sync()

	drone, err := tello.Dial(cfg.Drone, log.Named("tello"))
	if err != nil {
		log.Fatal("open drone link", zap.Error(err))
	}
	if err := drone.Connect(); err != nil {
		drone.Close()
		log.Fatal("connect to drone", zap.String("addr", cfg.Drone.Address), zap.Error(err))
	}

	// Reset the stream before starting it in case a previous run left it on.
	if err := drone.StreamOff(); err != nil {
		log.Warn("stream off failed", zap.Error(err))
	}
	if err := drone.StreamOn(); err != nil {
		drone.Close()
		log.Fatal("start video stream", zap.Error(err))
	}

	src := capture.NewStream(cfg.StreamURL())
	if err := src.Open(); err != nil {
		drone.StreamOff()
		drone.Close()
		log.Fatal("open video stream", zap.String("url", cfg.StreamURL()), zap.Error(err))
	}
	log.Info("video stream open", zap.String("url", cfg.StreamURL()), zap.Stringer("size", src.Size()))

	session := pilot.New(cfg, pilot.Deps{
		Vehicle:  drone,
		Source:   src,
		Detector: newDetector(cfg.Detector, log),
		Display:  display.NewWindow(cfg.Video.WindowTitle),
		Logger:   log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("press t to take off, 1 to follow your hand, ESC to exit",
		zap.String("session", session.ID().String()))
	if err := session.Run(ctx); err != nil {
		log.Error("session failed", zap.Error(err))
	}
	session.Stop()
}

// newDetector starts the MediaPipe service and falls back to the mock detector
// when the script is missing or Python cannot run it.
func newDetector(cfg detector.Config, log *zap.Logger) detector.Detector {
	mp, err := detector.NewMediaPipeDetector(cfg, log.Named("mediapipe"))
	if err == nil {
		err = mp.Start()
	}
	if err != nil {
		log.Warn("MediaPipe not available, using mock detector", zap.Error(err))
		return detector.NewMockDetector()
	}
	log.Info("using MediaPipe hand detection")
	return mp
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "handpilot: %s: %v\n", what, err)
	os.Exit(1)
}
