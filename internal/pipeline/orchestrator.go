package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxtrace/internal/observe"
	"github.com/MrWong99/voxtrace/internal/segment"
	"github.com/MrWong99/voxtrace/internal/speaker"
	"github.com/MrWong99/voxtrace/pkg/audio"
	"github.com/MrWong99/voxtrace/pkg/provider/embeddings"
	"github.com/MrWong99/voxtrace/pkg/provider/stt"
)

// Orchestrator sequences the per-stream pipeline. Safe for concurrent use;
// multiple streams may be processed simultaneously.
type Orchestrator struct {
	segmenter   *segment.Segmenter
	encoder     embeddings.VoiceEncoder
	resolver    *speaker.Resolver
	transcriber stt.Transcriber
	speakers    speaker.Repository
	messages    MessageRepository
	store       AudioStore

	workers int
	metrics *observe.Metrics
	now     func() time.Time
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithWorkers sets the number of parallel clip workers per Process call.
// Values below 2 keep the reference sequential behaviour. Result order is
// unaffected: clips always appear in discovery order.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithMetrics replaces the default package-level metrics instance. Tests use
// this to avoid cross-test pollution.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator from its collaborators.
func New(
	segmenter *segment.Segmenter,
	encoder embeddings.VoiceEncoder,
	resolver *speaker.Resolver,
	transcriber stt.Transcriber,
	speakers speaker.Repository,
	messages MessageRepository,
	store AudioStore,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		segmenter:   segmenter,
		encoder:     encoder,
		resolver:    resolver,
		transcriber: transcriber,
		speakers:    speakers,
		messages:    messages,
		store:       store,
		workers:     1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// clipOutcome is the explicit per-clip result consumed by the Process loop:
// either a Result or the reason the clip was skipped. Making failure a value
// keeps the isolation decision visible at the call site.
type clipOutcome struct {
	result Result
	err    error
}

// Process runs the full pipeline over one audio stream and returns one
// Result per successfully processed clip, in clip discovery order.
//
// A stream with no detectable voice clips yields an empty result slice and a
// nil error. Per-clip failures are logged and skipped; Process returns a
// non-nil error only when the stream cannot be segmented at all or ctx is
// cancelled before segmentation completes.
//
// Cancelling ctx stops new clip work from starting; clips already persisted
// keep their records and are returned.
func (o *Orchestrator) Process(ctx context.Context, samples []float32, sampleRate int) ([]Result, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.Process")
	defer span.End()

	o.metrics.ActiveStreams.Add(ctx, 1)
	defer o.metrics.ActiveStreams.Add(ctx, -1)

	segStart := time.Now()
	clips, err := o.segmenter.Segment(samples, sampleRate)
	o.metrics.SegmentationDuration.Record(ctx, time.Since(segStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("pipeline: segment stream: %w", err)
	}
	if len(clips) == 0 {
		return []Result{}, nil
	}

	outcomes := make([]clipOutcome, len(clips))
	if o.workers > 1 {
		o.processParallel(ctx, clips, outcomes)
	} else {
		o.processSequential(ctx, clips, outcomes)
	}

	results := make([]Result, 0, len(clips))
	for i, oc := range outcomes {
		if oc.err != nil {
			observe.Logger(ctx).Error("pipeline: clip skipped",
				"clip", i,
				"clips", len(clips),
				"err", oc.err,
			)
			o.metrics.RecordClip(ctx, "failed")
			continue
		}
		o.metrics.RecordClip(ctx, "ok")
		results = append(results, oc.result)
	}

	return results, nil
}

// processSequential handles clips one at a time in discovery order.
func (o *Orchestrator) processSequential(ctx context.Context, clips []audio.Signal, outcomes []clipOutcome) {
	for i, clip := range clips {
		if err := ctx.Err(); err != nil {
			outcomes[i] = clipOutcome{err: fmt.Errorf("pipeline: cancelled before clip started: %w", err)}
			continue
		}
		res, err := o.processClip(ctx, clip)
		outcomes[i] = clipOutcome{result: res, err: err}
	}
}

// processParallel fans clips out to a bounded worker group. Each worker
// writes into its own outcome slot, so discovery order survives regardless
// of completion order. Per-clip errors are captured in the outcome rather
// than returned, so one failed clip never cancels its siblings.
func (o *Orchestrator) processParallel(ctx context.Context, clips []audio.Signal, outcomes []clipOutcome) {
	var g errgroup.Group
	g.SetLimit(o.workers)

	for i, clip := range clips {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = clipOutcome{err: fmt.Errorf("pipeline: cancelled before clip started: %w", err)}
				return nil
			}
			res, err := o.processClip(ctx, clip)
			outcomes[i] = clipOutcome{result: res, err: err}
			return nil
		})
	}

	// Workers never return errors; Wait is only a join point.
	_ = g.Wait()
}

// processClip runs the per-clip stages: embedding, speaker resolution,
// transcription, audio storage, message persistence. Any partial persistence
// is rolled back on failure so a skipped clip leaves no orphaned record.
func (o *Orchestrator) processClip(ctx context.Context, clip audio.Signal) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.processClip")
	defer span.End()

	// Stage 1: speaker embedding.
	embStart := time.Now()
	embedding, err := o.encoder.Encode(ctx, clip)
	o.metrics.EmbeddingDuration.Record(ctx, time.Since(embStart).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "embedding")
		return Result{}, fmt.Errorf("extract embedding: %w", err)
	}

	// Stage 2: resolve the speaker or enroll a new profile.
	resStart := time.Now()
	profile, isNew, err := o.resolver.Resolve(ctx, embedding)
	o.metrics.ResolveDuration.Record(ctx, time.Since(resStart).Seconds())
	if err != nil {
		return Result{}, fmt.Errorf("resolve speaker: %w", err)
	}
	if isNew {
		o.metrics.SpeakersEnrolled.Add(ctx, 1)
	}

	// Stage 3: transcription.
	trStart := time.Now()
	tr, err := o.transcriber.Transcribe(ctx, clip)
	o.metrics.TranscriptionDuration.Record(ctx, time.Since(trStart).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "transcription")
		return Result{}, fmt.Errorf("transcribe: %w", err)
	}

	// Stage 4: persist the audio, then the message record.
	audioPath, err := o.store.Save(ctx, clip, profile.SpeakerID)
	if err != nil {
		return Result{}, fmt.Errorf("save audio: %w", err)
	}

	now := o.now()
	msg := VoiceMessage{
		SpeakerID:     profile.SpeakerID,
		AudioPath:     audioPath,
		Duration:      clip.Seconds(),
		Language:      tr.Language,
		Transcription: tr.Text,
		Confidence:    tr.Confidence,
		Timestamp:     now,
	}
	msgID, err := o.messages.Insert(ctx, msg)
	if err != nil {
		// Roll back the stored audio so the skipped clip leaves no orphan.
		if delErr := o.store.Delete(ctx, audioPath); delErr != nil {
			observe.Logger(ctx).Warn("pipeline: rollback of stored audio failed",
				"path", audioPath,
				"err", delErr,
			)
		}
		return Result{}, fmt.Errorf("insert message: %w", err)
	}

	// Stage 5: refresh the profile's lastSeen. Failure here is not worth
	// discarding an otherwise complete message over.
	if !isNew {
		if err := o.speakers.TouchLastSeen(ctx, profile.SpeakerID, profile.LastSeen); err != nil {
			observe.Logger(ctx).Warn("pipeline: touch lastSeen failed",
				"speaker_id", profile.SpeakerID,
				"err", err,
			)
		}
	}

	return Result{
		MessageID:     msgID,
		SpeakerID:     profile.SpeakerID,
		IsNewSpeaker:  isNew,
		Language:      tr.Language,
		Transcription: tr.Text,
		Confidence:    tr.Confidence,
		Duration:      clip.Seconds(),
		AudioPath:     audioPath,
		Timestamp:     now,
	}, nil
}
