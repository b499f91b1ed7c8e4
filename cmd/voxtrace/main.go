// Command voxtrace ingests audio streams, cuts them into voice messages,
// resolves the speaker of each message, transcribes it, and persists the
// result. Each WAV file given on the command line is processed as one stream;
// results are printed as JSON lines on stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/voxtrace/internal/audiostore"
	"github.com/MrWong99/voxtrace/internal/config"
	"github.com/MrWong99/voxtrace/internal/observe"
	"github.com/MrWong99/voxtrace/internal/pipeline"
	"github.com/MrWong99/voxtrace/internal/segment"
	"github.com/MrWong99/voxtrace/internal/speaker"
	"github.com/MrWong99/voxtrace/internal/store/postgres"
	"github.com/MrWong99/voxtrace/pkg/audio"
	"github.com/MrWong99/voxtrace/pkg/provider/embeddings"
	"github.com/MrWong99/voxtrace/pkg/provider/embeddings/httpenc"
	"github.com/MrWong99/voxtrace/pkg/provider/stt"
	oaistt "github.com/MrWong99/voxtrace/pkg/provider/stt/openai"
	"github.com/MrWong99/voxtrace/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxtrace/pkg/provider/vad"
	"github.com/MrWong99/voxtrace/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mergeFiles := flag.Bool("merge", false, "coalesce all input files into one stream, separated by merge_gap_seconds of silence")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: voxtrace [-config config.yaml] [-merge] <stream.wav> [stream.wav…]")
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxtrace: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxtrace: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server)
	slog.SetDefault(logger)

	slog.Info("voxtrace starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"audio_dir", cfg.Storage.AudioDir,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxtrace",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, mux); err != nil {
				slog.Error("metrics endpoint error", "err", err)
			}
		}()
	}

	// ── Persistence ───────────────────────────────────────────────────────────
	store, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN, cfg.Storage.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		return 1
	}
	defer store.Close()

	audioStore, err := audiostore.New(cfg.Storage.AudioDir)
	if err != nil {
		slog.Error("failed to initialise audio store", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	classifier, err := buildVAD(cfg.Providers.VAD, cfg.Pipeline)
	if err != nil {
		slog.Error("failed to create vad provider", "err", err)
		return 1
	}

	transcriber, closeSTT, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "err", err)
		return 1
	}
	if closeSTT != nil {
		defer closeSTT()
	}

	encoder, err := buildEncoder(cfg.Providers.Embeddings, cfg.Storage.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to create embeddings provider", "err", err)
		return 1
	}

	// ── Pipeline assembly ─────────────────────────────────────────────────────
	orch := buildPipeline(cfg, classifier, encoder, transcriber, store, audioStore)

	slog.Info("pipeline ready",
		"streams", flag.NArg(),
		"workers", cfg.Pipeline.Workers,
	)

	// ── Ingest ────────────────────────────────────────────────────────────────
	enc := json.NewEncoder(os.Stdout)

	if *mergeFiles && flag.NArg() > 1 {
		gap := cfg.Pipeline.MergeGapSeconds
		if gap == 0 {
			gap = segment.DefaultMergeGapSeconds
		}
		stream, err := loadMerged(flag.Args(), gap)
		if err != nil {
			slog.Error("failed to merge streams", "err", err)
			return 1
		}
		results, err := orch.Process(ctx, stream.Samples, stream.SampleRate)
		if err != nil {
			slog.Error("failed to process merged stream", "err", err)
			return 1
		}
		slog.Info("merged stream processed", "files", flag.NArg(), "messages", len(results))

		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				slog.Error("failed to encode result", "err", err)
				return 1
			}
		}
		slog.Info("goodbye")
		return 0
	}

	for _, path := range flag.Args() {
		if ctx.Err() != nil {
			slog.Warn("shutdown requested, skipping remaining streams")
			break
		}

		stream, err := loadStream(path)
		if err != nil {
			slog.Error("failed to load stream", "path", path, "err", err)
			return 1
		}

		results, err := orch.Process(ctx, stream.Samples, stream.SampleRate)
		if err != nil {
			slog.Error("failed to process stream", "path", path, "err", err)
			return 1
		}
		slog.Info("stream processed", "path", path, "messages", len(results))

		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				slog.Error("failed to encode result", "err", err)
				return 1
			}
		}
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildVAD constructs the voice activity classifier. Only the energy
// classifier ships in-process; its aggressiveness comes from the pipeline
// config so the provider entry stays optional.
func buildVAD(entry config.ProviderEntry, pcfg config.PipelineConfig) (vad.Classifier, error) {
	name := entry.Name
	if name == "" {
		name = "energy"
	}
	switch name {
	case "energy":
		return energy.New(vad.Aggressiveness(pcfg.VADAggressiveness))
	default:
		return nil, fmt.Errorf("unknown vad provider %q", name)
	}
}

// buildSTT constructs the transcriber named in entry. The returned close
// function releases native model resources and may be nil.
func buildSTT(entry config.ProviderEntry) (stt.Transcriber, func() error, error) {
	name := entry.Name
	if name == "" {
		name = "whisper"
	}
	switch name {
	case "whisper":
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		p, err := whisper.New(entry.BaseURL, opts...)
		return p, nil, err
	case "whisper-native":
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		p, err := whisper.NewNative(modelPath, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "openai":
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		p, err := oaistt.New(entry.APIKey, entry.Model, opts...)
		return p, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown stt provider %q", name)
	}
}

// buildEncoder constructs the voice embedding encoder.
func buildEncoder(entry config.ProviderEntry, dimensions int) (embeddings.VoiceEncoder, error) {
	name := entry.Name
	if name == "" {
		name = "http"
	}
	switch name {
	case "http":
		return httpenc.New(entry.BaseURL, dimensions)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", name)
	}
}

// buildPipeline assembles the orchestrator from configured components,
// applying documented defaults for zero-valued tuning knobs.
func buildPipeline(
	cfg *config.Config,
	classifier vad.Classifier,
	encoder embeddings.VoiceEncoder,
	transcriber stt.Transcriber,
	store *postgres.Store,
	audioStore *audiostore.Store,
) *pipeline.Orchestrator {
	var detOpts []segment.DetectorOption
	if cfg.Pipeline.SampleRate > 0 {
		detOpts = append(detOpts, segment.WithSampleRate(cfg.Pipeline.SampleRate))
	}
	if cfg.Pipeline.FrameDurationMs > 0 {
		detOpts = append(detOpts, segment.WithFrameDuration(cfg.Pipeline.FrameDurationMs))
	}
	if cfg.Pipeline.PaddingFrames > 0 {
		detOpts = append(detOpts, segment.WithPaddingFrames(cfg.Pipeline.PaddingFrames))
	}
	detector := segment.NewDetector(classifier, detOpts...)

	var segOpts []segment.SegmenterOption
	if cfg.Pipeline.MinClipSeconds > 0 {
		segOpts = append(segOpts, segment.WithMinClipSeconds(cfg.Pipeline.MinClipSeconds))
	}
	if cfg.Pipeline.MaxClipSeconds > 0 {
		segOpts = append(segOpts, segment.WithMaxClipSeconds(cfg.Pipeline.MaxClipSeconds))
	}
	segmenter := segment.NewSegmenter(detector, segOpts...)

	var resOpts []speaker.ResolverOption
	if cfg.Pipeline.SpeakerThreshold > 0 {
		resOpts = append(resOpts, speaker.WithThreshold(cfg.Pipeline.SpeakerThreshold))
	}
	resolver := speaker.NewResolver(store.Speakers(), resOpts...)

	var orchOpts []pipeline.Option
	if cfg.Pipeline.Workers > 1 {
		orchOpts = append(orchOpts, pipeline.WithWorkers(cfg.Pipeline.Workers))
	}
	return pipeline.New(
		segmenter,
		encoder,
		resolver,
		transcriber,
		store.Speakers(),
		store.Messages(),
		audioStore,
		orchOpts...,
	)
}

// loadStream reads a WAV file into a float signal at its native sample rate.
// The segmenter resamples to the canonical rate itself.
func loadStream(path string) (audio.Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Signal{}, err
	}
	pcm, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		return audio.Signal{}, err
	}
	return audio.Signal{
		Samples:    audio.PCM16ToFloat(pcm),
		SampleRate: sampleRate,
	}, nil
}

// loadMerged reads every WAV file and coalesces them into a single stream,
// inserting gapSeconds of silence between consecutive files. Files recorded
// at a different rate than the first are resampled before merging.
func loadMerged(paths []string, gapSeconds float64) (audio.Signal, error) {
	clips := make([]audio.Signal, 0, len(paths))
	for _, path := range paths {
		s, err := loadStream(path)
		if err != nil {
			return audio.Signal{}, fmt.Errorf("load %q: %w", path, err)
		}
		if len(clips) > 0 && s.SampleRate != clips[0].SampleRate {
			s = audio.Signal{
				Samples:    audio.Resample(s.Samples, s.SampleRate, clips[0].SampleRate),
				SampleRate: clips[0].SampleRate,
			}
		}
		clips = append(clips, s)
	}
	return segment.MergeClips(clips, gapSeconds)[0], nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. When a log file is configured, output
// goes to both stderr and a size-rotated file.
func newLogger(server config.ServerConfig) *slog.Logger {
	var lvl slog.Level
	switch server.LogLevel {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if server.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   server.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
