// MockView is a spoken mock-interview service: it asks questions out
// loud, listens to the candidate's answers, watches for compliance
// violations, and generates feedback at the end.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mockview/mockview/internal/audio"
	"github.com/mockview/mockview/internal/avatar"
	"github.com/mockview/mockview/internal/bus"
	"github.com/mockview/mockview/internal/capture"
	"github.com/mockview/mockview/internal/config"
	"github.com/mockview/mockview/internal/interview"
	"github.com/mockview/mockview/internal/llm"
	"github.com/mockview/mockview/internal/logging"
	"github.com/mockview/mockview/internal/media"
	"github.com/mockview/mockview/internal/proctor"
	"github.com/mockview/mockview/internal/server"
	"github.com/mockview/mockview/internal/session"
	"github.com/mockview/mockview/internal/speaker"
	"github.com/mockview/mockview/internal/stt"
	"github.com/mockview/mockview/internal/tts"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logSys, err := logging.New(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logSys.Close()
	log := logSys.Component("main")

	events := bus.NewEventBus()
	devices := media.NewRegistry()

	// Speech output: ElevenLabs primary, system synthesizer fallback,
	// wall-clock timeline as the last resort inside the driver.
	primary := tts.NewElevenLabsProvider(logSys.Zerolog(), &tts.ElevenLabsConfig{
		APIKey:  cfg.TTS.APIKey,
		VoiceID: cfg.TTS.VoiceID,
		ModelID: cfg.TTS.ModelID,
		Timeout: cfg.TTS.Timeout,
	})
	var fallback tts.Provider
	if sys := tts.NewSystemProvider(logSys.Zerolog(), nil); sys.IsAvailable() {
		fallback = sys
	}
	state := avatar.NewState()
	spk := speaker.NewDriver(primary, fallback, nil, state, events, speaker.DefaultConfig(), logSys.Zerolog())

	// Speech capture: one streaming recognizer per answer span.
	recognizers := func() stt.Recognizer {
		return stt.NewStreamingRecognizer(cfg.STT, logSys.Zerolog())
	}
	capturer := capture.NewController(recognizers, devices, events, cfg.Audio, logSys.Zerolog())

	// Server-mediated capture sessions for external clients.
	registry := session.NewRegistry(cfg.Session, session.RecognizerFactory(recognizers), events, logSys.Zerolog())
	registry.StartSweeper()
	defer registry.StopSweeper()

	// Compliance monitoring. Without an analyzer endpoint only the
	// audio channel runs.
	var analyzer proctor.FrameAnalyzer
	if cfg.Proctor.AnalyzerURL != "" {
		analyzer = proctor.NewHTTPAnalyzer(cfg.Proctor.AnalyzerURL, logSys.Zerolog())
	}
	frames := proctor.NewFrameBuffer(0)
	monitor := proctor.NewMonitor(cfg.Proctor, frames, analyzer, events, logSys.Zerolog())

	generator := llm.NewClient(cfg.LLM, logSys.Zerolog())

	ctrl := interview.NewController(spk, capturer, generator, events, cfg.Interview, logSys.Zerolog())
	defer ctrl.Stop()

	events.Subscribe(bus.EventTypeScreenChanged, func(e bus.Event) {
		log.Info().Interface("screen", e.Data["screen"]).Msg("Screen changed")
	})
	events.Subscribe(bus.EventTypeViolation, func(e bus.Event) {
		log.Warn().Interface("category", e.Data["category"]).
			Interface("channel", e.Data["channel"]).Msg("Violation")
	})
	events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeCaptureStarted,
		bus.EventTypeCaptureStopped,
		bus.EventTypeCaptureAutoStop,
	}, func(e bus.Event) {
		log.Debug().Str("event", string(e.Type)).Msg("Capture event")
	})

	// Ambient noise observed while listening feeds the compliance
	// audio channel.
	ctrl.SetLevelHook(func(l audio.Level) {
		monitor.ProcessAudioLevel(l.Smoothed, cfg.Audio.NoiseThreshold)
	})

	srv := server.New(cfg.Server, server.Deps{
		Registry:  registry,
		Monitor:   monitor,
		Frames:    frames,
		Logs:      logSys,
		Interview: ctrl,
		Avatar:    state,
	}, logSys.Zerolog())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()

	log.Info().Str("addr", cfg.Server.Addr).Msg("MockView started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// Flush subscribers before teardown, then drop them so handlers
	// do not fire while components wind down.
	events.PublishSync(bus.Event{Type: bus.EventTypeShutdown})
	events.Clear()
	return srv.Shutdown()
}
