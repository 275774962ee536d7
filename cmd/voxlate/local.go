package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxlate/voxlate/internal/api"
	"github.com/voxlate/voxlate/internal/app"
	"github.com/voxlate/voxlate/internal/config"
	"github.com/voxlate/voxlate/internal/pipeline"
	"github.com/voxlate/voxlate/pkg/audio/local"
)

// localOptions carries the CLI flags that shape a --local session.
type localOptions struct {
	SourceLang string
	TargetLang string
	Voice      string
}

// localSession drives one microphone-to-speaker translation session against
// the session manager. Playback runs at 24 kHz mono; providers whose output
// rate differs need their output format configured to match (for example
// elevenlabs output_format pcm_24000).
type localSession struct {
	src  local.Source
	sink local.Sink
	opts localOptions
}

// newLocalSession opens the machine's audio devices. In binaries built
// without the "local" tag this fails with a clear error.
func newLocalSession(cfg *config.Config, opts localOptions) (*localSession, error) {
	src, err := local.NewCapture(local.CaptureConfig{
		Format:        app.IngestFormat(cfg),
		FrameDuration: millis(cfg.VAD.FrameDurationMs),
	})
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	sink, err := local.NewPlayback(local.PlaybackConfig{})
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("open speaker: %w", err)
	}

	return &localSession{src: src, sink: sink, opts: opts}, nil
}

// Run creates a session, pumps capture frames into it, and plays synthesis
// events back out. It returns when ctx is cancelled, the capture stream
// closes, or the session ends.
func (s *localSession) Run(ctx context.Context, sessions api.Sessions) error {
	info, err := sessions.Create(ctx, api.CreateSessionRequest{
		SourceLang: s.opts.SourceLang,
		TargetLang: s.opts.TargetLang,
		Voice:      s.opts.Voice,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		if err := sessions.Stop(info.ID); err != nil && !errors.Is(err, api.ErrNotFound) {
			slog.Warn("stop local session", "err", err)
		}
	}()

	events, cancel, err := sessions.Subscribe(info.ID)
	if err != nil {
		return fmt.Errorf("subscribe to session events: %w", err)
	}
	defer cancel()

	slog.Info("local session started — speak into the microphone",
		"session_id", info.ID,
		"source_lang", s.opts.SourceLang,
		"target_lang", s.opts.TargetLang,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case pcm, ok := <-s.src.Frames():
			if !ok {
				return errors.New("microphone capture stopped")
			}
			if err := sessions.Feed(info.ID, pcm); err != nil {
				return fmt.Errorf("feed session: %w", err)
			}

		case ev, ok := <-events:
			if !ok {
				// Session ended on its own (fatal pipeline error or
				// manager shutdown).
				return nil
			}
			s.handleEvent(ev)
		}
	}
}

// handleEvent reacts to one pipeline event: audio goes to the speaker, text
// goes to the console, everything else to the log.
func (s *localSession) handleEvent(ev api.SessionEvent) {
	switch ev.Kind {
	case pipeline.KindSynthesisAudio:
		s.sink.Enqueue(ev.Audio)

	case pipeline.KindSpeechStart:
		// A new utterance cuts off whatever translation is still playing.
		s.sink.Flush()

	case pipeline.KindTranslationFinal:
		fmt.Printf("▶ %s\n", ev.Text)

	case pipeline.KindTurnCompleted:
		if ev.Transcript != "" {
			fmt.Printf("  (heard: %s)\n", ev.Transcript)
		}

	case pipeline.KindModeSwitched:
		slog.Info("mode switched", "mode", ev.Mode, "reason", ev.Reason)

	case pipeline.KindPipelineError:
		slog.Warn("pipeline error", "error", ev.Error)
	}
}

// Close releases the audio devices.
func (s *localSession) Close() error {
	err := s.src.Close()
	if cerr := s.sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
