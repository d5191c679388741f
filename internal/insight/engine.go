// Package insight runs the milestone-triggered generation pipeline: claim the
// (track, milestone) key, gather rating data, build a hardened prompt, call
// the generation provider, and finalize the record. Completed records are
// terminal; pending and failed records can be retried.
package insight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielmerja/music-virality-rater/internal/adapters/repository"
	"github.com/danielmerja/music-virality-rater/internal/domain/dedupe"
	"github.com/danielmerja/music-virality-rater/internal/domain/milestone"
	"github.com/danielmerja/music-virality-rater/internal/domain/model"
	"github.com/danielmerja/music-virality-rater/pkg/logger"
	"github.com/danielmerja/music-virality-rater/pkg/metrics"
)

// Store is the persistence surface the engine needs.
type Store interface {
	ClaimInsight(ctx context.Context, trackID string, ms int) (bool, error)
	GetTrack(ctx context.Context, id string) (*model.Track, error)
	RatingsForTrack(ctx context.Context, trackID string) ([]model.Rating, error)
	MarkInsightComplete(ctx context.Context, trackID string, ms int, insights []model.Insight) error
	MarkInsightFailed(ctx context.Context, trackID string, ms int) error
	InsightStatuses(ctx context.Context, trackID string, milestones []int) (map[int]model.InsightStatus, error)
}

// Generator produces structured insights from the supplied prompts.
type Generator interface {
	GenerateInsights(ctx context.Context, systemPrompt, userPrompt string, want int) ([]model.Insight, error)
}

// Engine processes insight jobs. It implements the worker Processor contract.
type Engine struct {
	store   Store
	gen     Generator
	deduper dedupe.Deduper
	logger  logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithDeduper attaches the in-flight suppression set shared with dispatchers.
func WithDeduper(d dedupe.Deduper) Option {
	return func(e *Engine) {
		if d != nil {
			e.deduper = d
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine constructs the generation engine.
func NewEngine(store Store, gen Generator, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		gen:    gen,
		logger: logger.Get().Named("insight"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs the full pipeline for one job. A refused claim is a silent
// no-op; generation failures mark the record failed and surface the error to
// the caller for logging only, never to the rating path.
func (e *Engine) Process(ctx context.Context, job model.InsightJob) error {
	if e.deduper != nil {
		defer e.deduper.Unrecord(ctx, job.Key())
	}

	if !milestone.IsMilestone(job.Milestone) {
		return fmt.Errorf("not a milestone: %d", job.Milestone)
	}

	claimed, err := e.store.ClaimInsight(ctx, job.TrackID, job.Milestone)
	if err != nil {
		metrics.RecordInsightGeneration("failed")
		return fmt.Errorf("claim insight: %w", err)
	}
	if !claimed {
		metrics.RecordInsightJobSuppressed()
		e.logger.Debug(ctx, "insight already complete, skipping",
			logger.String("track_id", job.TrackID),
			logger.Int("milestone", job.Milestone),
		)
		return nil
	}

	insights, err := e.generate(ctx, job)
	if err != nil {
		// The failure may be the job context expiring; the terminal write
		// must still land or the record stays pending until backfill.
		markCtx := context.WithoutCancel(ctx)
		if markErr := e.store.MarkInsightFailed(markCtx, job.TrackID, job.Milestone); markErr != nil {
			e.logger.Error(ctx, "failed to mark insight record failed",
				logger.String("track_id", job.TrackID),
				logger.Int("milestone", job.Milestone),
				logger.Error(markErr),
			)
		}
		metrics.RecordInsightGeneration("failed")
		return err
	}

	if err := e.store.MarkInsightComplete(ctx, job.TrackID, job.Milestone, insights); err != nil {
		metrics.RecordInsightGeneration("failed")
		return fmt.Errorf("finalize insight record: %w", err)
	}
	metrics.RecordInsightGeneration("success")
	return nil
}

func (e *Engine) generate(ctx context.Context, job model.InsightJob) ([]model.Insight, error) {
	track, err := e.store.GetTrack(ctx, job.TrackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("track %s no longer exists", job.TrackID)
		}
		return nil, fmt.Errorf("load track: %w", err)
	}

	ratings, err := e.store.RatingsForTrack(ctx, job.TrackID)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	if len(ratings) == 0 {
		return nil, fmt.Errorf("track %s has no ratings", job.TrackID)
	}

	want := milestone.InsightCount(job.Milestone)
	systemPrompt, userPrompt := BuildPrompt(track, ratings, job.Milestone, want)

	start := time.Now()
	insights, err := e.gen.GenerateInsights(ctx, systemPrompt, userPrompt, want)
	metrics.RecordGenerationLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("generate insights: %w", err)
	}
	// An empty result must never become a terminal complete record.
	if len(insights) == 0 {
		return nil, fmt.Errorf("generation returned no insights for track %s milestone %d", job.TrackID, job.Milestone)
	}
	return insights, nil
}

// MissingMilestones returns the milestones the track has passed that have no
// complete insight record yet. The backfill path dispatches a job for each.
func (e *Engine) MissingMilestones(ctx context.Context, trackID string, votesReceived int) ([]int, error) {
	passed := milestone.Passed(votesReceived)
	if len(passed) == 0 {
		return nil, nil
	}

	statuses, err := e.store.InsightStatuses(ctx, trackID, passed)
	if err != nil {
		return nil, fmt.Errorf("load insight statuses: %w", err)
	}

	var missing []int
	for _, ms := range passed {
		if statuses[ms] != model.InsightComplete {
			missing = append(missing, ms)
		}
	}
	return missing, nil
}
