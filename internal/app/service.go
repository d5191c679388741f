// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/danielmerja/music-virality-rater/internal/adapters/genai"
	jobqueue "github.com/danielmerja/music-virality-rater/internal/adapters/mq/queue"
	workerpool "github.com/danielmerja/music-virality-rater/internal/adapters/mq/worker"
	"github.com/danielmerja/music-virality-rater/internal/adapters/repository"
	"github.com/danielmerja/music-virality-rater/internal/domain/dedupe"
	"github.com/danielmerja/music-virality-rater/internal/domain/milestone"
	"github.com/danielmerja/music-virality-rater/internal/domain/model"
	"github.com/danielmerja/music-virality-rater/internal/domain/sanitize"
	"github.com/danielmerja/music-virality-rater/internal/domain/scoring"
	"github.com/danielmerja/music-virality-rater/internal/domain/stage"
	"github.com/danielmerja/music-virality-rater/internal/domain/types"
	"github.com/danielmerja/music-virality-rater/internal/insight"
	"github.com/danielmerja/music-virality-rater/pkg/logger"
	"github.com/danielmerja/music-virality-rater/pkg/metrics"
)

const (
	signupCredits = 20

	defaultVoteQuota = 5
	maxVoteQuota     = 100

	defaultDBPath = "rater.db"
)

// Service wires the store, job queue, worker pool, and insight engine.
type Service struct {
	mu sync.RWMutex

	store    *repository.Store
	deduper  dedupe.Deduper
	jobQueue jobqueue.Queue
	gen      insight.Generator
	engine   *insight.Engine
	pool     *workerpool.Pool

	dbPath      string
	workerCount int
	queueSize   int
	genTimeout  time.Duration
	genaiConfig genai.Config

	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the SQLite database path.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithStore injects an already opened store. Tests use this to share a
// temp-dir database with the service.
func WithStore(store *repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of insight worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the insight job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithGenerator injects the insight generator. Defaults to the genai client
// built from the configured provider settings.
func WithGenerator(gen insight.Generator) Option {
	return func(s *Service) {
		if gen != nil {
			s.gen = gen
		}
	}
}

// WithGenAIConfig sets the provider settings for the default generator.
func WithGenAIConfig(cfg genai.Config) Option {
	return func(s *Service) {
		s.genaiConfig = cfg
	}
}

// WithGenerationTimeout bounds each insight generation job.
func WithGenerationTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.genTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:      defaultDBPath,
		workerCount: runtime.NumCPU() * 2,
		queueSize:   10_000,
		genTimeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.store == nil {
		store, err := repository.Open(s.dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
	}

	if s.gen == nil {
		s.gen = genai.NewClient(s.genaiConfig)
	}

	s.deduper = dedupe.NewInFlightSet()
	s.jobQueue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.engine = insight.NewEngine(s.store, s.gen,
		insight.WithDeduper(s.deduper),
		insight.WithLogger(s.logger.Named("insight")),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.jobQueue, s.engine,
		workerpool.WithJobTimeout(s.genTimeout),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.String("db_path", s.store.Path()),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping rating service...")

	if s.jobQueue != nil {
		_ = s.jobQueue.Close()
	}
	if s.pool != nil {
		_ = s.pool.Shutdown(ctx)
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "rating service stopped")
}

// SubmitRating runs the full rating ingestion sequence. The insight trigger
// is dispatched fire-and-forget; its outcome never reaches this result.
func (s *Service) SubmitRating(ctx context.Context, raterID string, sub types.RatingSubmission) (types.RatingAck, error) {
	var ack types.RatingAck

	if raterID == "" {
		metrics.RecordRatingRejected()
		return ack, ErrUnauthorized
	}
	if err := validateSubmission(sub); err != nil {
		metrics.RecordRatingRejected()
		return ack, err
	}
	if _, err := s.store.EnsureProfile(ctx, raterID, raterID, signupCredits); err != nil {
		return ack, fmt.Errorf("ensure profile: %w", err)
	}

	rating := &model.Rating{
		TrackID:    sub.TrackID,
		RaterID:    raterID,
		Dimensions: sub.Dimensions,
		Feedback:   sub.Feedback,
	}
	if err := s.store.InsertRating(ctx, rating); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordRatingRejected()
			return ack, fmt.Errorf("track %s: %w", sub.TrackID, ErrNotFound)
		}
		return ack, fmt.Errorf("insert rating: %w", err)
	}

	votes, err := s.store.IncrementVotes(ctx, sub.TrackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ack, fmt.Errorf("track %s: %w", sub.TrackID, ErrNotFound)
		}
		return ack, fmt.Errorf("increment votes: %w", err)
	}

	progress, err := s.store.IncrementRaterProgress(ctx, raterID)
	if err != nil {
		return ack, fmt.Errorf("increment progress: %w", err)
	}
	metrics.RecordRatingSubmitted()

	ack.NewProgress = progress
	if progress >= model.RatingCycleLength {
		awarded, err := s.store.AwardCycleBonus(ctx, raterID, progress, sub.TrackID)
		if err != nil {
			return ack, fmt.Errorf("award cycle bonus: %w", err)
		}
		if awarded {
			metrics.RecordCreditAwarded()
			ack.CreditEarned = true
			ack.NewProgress = 0
		}
	}

	if votes.VotesRequested > 0 && votes.VotesReceived >= votes.VotesRequested {
		if err := s.completeTrack(ctx, sub.TrackID); err != nil {
			s.logger.Error(ctx, "completion scoring failed",
				logger.String("track_id", sub.TrackID),
				logger.Error(err),
			)
		}
	}

	if milestone.IsMilestone(votes.VotesReceived) {
		s.dispatch(ctx, model.InsightJob{TrackID: sub.TrackID, Milestone: votes.VotesReceived})
	}

	return ack, nil
}

func validateSubmission(sub types.RatingSubmission) error {
	if sub.TrackID == "" {
		return fmt.Errorf("track id required: %w", ErrValidation)
	}
	for i, score := range sub.Dimensions {
		if score < model.MinDimensionScore || score > model.MaxDimensionScore {
			return fmt.Errorf("dimension %d score %d out of range [%d, %d]: %w",
				i+1, score, model.MinDimensionScore, model.MaxDimensionScore, ErrValidation)
		}
	}
	if utf8.RuneCountInString(sub.Feedback) > sanitize.MaxFeedbackLength {
		return fmt.Errorf("feedback exceeds %d characters: %w", sanitize.MaxFeedbackLength, ErrValidation)
	}
	return nil
}

// completeTrack computes final scores and performs the single
// collecting-to-complete transition. Only the conditional update decides the
// winner when quota-crossing calls race.
func (s *Service) completeTrack(ctx context.Context, trackID string) error {
	ratings, err := s.store.RatingsForTrack(ctx, trackID)
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	if len(ratings) == 0 {
		return nil
	}
	summary := scoring.Summarize(ratings)

	population, err := s.store.CompletedScores(ctx, trackID)
	if err != nil {
		return fmt.Errorf("load completed scores: %w", err)
	}
	percentile := scoring.Percentile(summary.Overall, population)

	did, err := s.store.CompleteTrack(ctx, trackID, summary.Overall, percentile)
	if err != nil {
		return fmt.Errorf("complete track: %w", err)
	}
	if did {
		metrics.RecordTrackCompleted()
		s.logger.Info(ctx, "track completed",
			logger.String("track_id", trackID),
			logger.Float64("overall_score", summary.Overall),
			logger.Int("percentile", percentile),
		)
	}
	return nil
}

// dispatch enqueues one insight job unless an identical job is already in
// flight. A full queue drops the job; backfill recovers it later.
func (s *Service) dispatch(ctx context.Context, job model.InsightJob) {
	if s.deduper.SeenAndRecord(ctx, job.Key()) {
		metrics.RecordInsightJobSuppressed()
		return
	}
	if !s.jobQueue.Enqueue(ctx, job) {
		s.deduper.Unrecord(ctx, job.Key())
		s.logger.Warn(ctx, "insight job dropped, queue full",
			logger.String("track_id", job.TrackID),
			logger.Int("milestone", job.Milestone),
		)
	}
}

// TriggerMissingInsights dispatches jobs for every passed milestone lacking
// a complete record. Each milestone is dispatched independently.
func (s *Service) TriggerMissingInsights(ctx context.Context, trackID string) (int, error) {
	track, err := s.store.GetTrack(ctx, trackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
		}
		return 0, fmt.Errorf("load track: %w", err)
	}

	missing, err := s.engine.MissingMilestones(ctx, trackID, track.VotesReceived)
	if err != nil {
		return 0, err
	}
	for _, ms := range missing {
		s.dispatch(ctx, model.InsightJob{TrackID: trackID, Milestone: ms})
	}
	return len(missing), nil
}

// CreateTrack creates a draft track, seeding the owner's profile with the
// signup grant when it does not exist yet.
func (s *Service) CreateTrack(ctx context.Context, ownerID string, sub types.TrackSubmission) (types.TrackView, error) {
	var view types.TrackView

	if ownerID == "" {
		return view, ErrUnauthorized
	}
	if sub.Title == "" {
		return view, fmt.Errorf("title required: %w", ErrValidation)
	}
	if utf8.RuneCountInString(sub.Title) > sanitize.MaxTitleLength {
		return view, fmt.Errorf("title exceeds %d characters: %w", sanitize.MaxTitleLength, ErrValidation)
	}
	if !stage.Valid(sub.ProductionStage) {
		return view, fmt.Errorf("unknown production stage %q: %w", sub.ProductionStage, ErrValidation)
	}

	if _, err := s.store.EnsureProfile(ctx, ownerID, ownerID, signupCredits); err != nil {
		return view, fmt.Errorf("ensure profile: %w", err)
	}

	token, err := shareToken()
	if err != nil {
		return view, fmt.Errorf("share token: %w", err)
	}
	track := &model.Track{
		OwnerID:         ownerID,
		Title:           sub.Title,
		GenreTags:       sub.GenreTags,
		ProductionStage: sub.ProductionStage,
		Duration:        sub.Duration,
		SnippetStart:    sub.SnippetStart,
		SnippetEnd:      sub.SnippetEnd,
		ShareToken:      token,
	}
	if err := s.store.CreateTrack(ctx, track); err != nil {
		return view, fmt.Errorf("create track: %w", err)
	}
	return trackView(track), nil
}

// SubmitForRating moves an owner's draft into collecting. The credit cost
// equals the requested vote quota and is deducted before the transition;
// the failed deduction leaves no ledger row and no state change.
func (s *Service) SubmitForRating(ctx context.Context, ownerID, trackID string, votesRequested int) (types.TrackView, error) {
	var view types.TrackView

	if ownerID == "" {
		return view, ErrUnauthorized
	}
	if votesRequested <= 0 {
		votesRequested = defaultVoteQuota
	}
	if votesRequested > maxVoteQuota {
		return view, fmt.Errorf("vote quota exceeds %d: %w", maxVoteQuota, ErrValidation)
	}

	track, err := s.store.GetTrack(ctx, trackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return view, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
		}
		return view, fmt.Errorf("load track: %w", err)
	}
	if track.OwnerID != ownerID {
		return view, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	if track.Status != model.StatusDraft {
		return view, fmt.Errorf("track is not a draft: %w", ErrValidation)
	}

	cost := votesRequested
	if err := s.store.AdjustCredits(ctx, ownerID, -cost, model.TxTrackSubmit, trackID); err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			return view, ErrInsufficientCredits
		}
		return view, fmt.Errorf("deduct credits: %w", err)
	}
	metrics.RecordCreditsSpent(cost)

	if err := s.store.SubmitTrack(ctx, trackID, ownerID, votesRequested); err != nil {
		return view, fmt.Errorf("submit track: %w", err)
	}

	track, err = s.store.GetTrack(ctx, trackID)
	if err != nil {
		return view, fmt.Errorf("reload track: %w", err)
	}
	return trackView(track), nil
}

// DeleteTrack soft-deletes an owner's track.
func (s *Service) DeleteTrack(ctx context.Context, ownerID, trackID string) error {
	if ownerID == "" {
		return ErrUnauthorized
	}
	if err := s.store.SoftDeleteTrack(ctx, trackID, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("track %s: %w", trackID, ErrNotFound)
		}
		return fmt.Errorf("delete track: %w", err)
	}
	return nil
}

// GetTrack returns the external view of one track.
func (s *Service) GetTrack(ctx context.Context, trackID string) (types.TrackView, error) {
	track, err := s.store.GetTrack(ctx, trackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return types.TrackView{}, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
		}
		return types.TrackView{}, fmt.Errorf("load track: %w", err)
	}
	return trackView(track), nil
}

// GetInsights returns all insight records for a track ordered by milestone.
func (s *Service) GetInsights(ctx context.Context, trackID string) ([]types.InsightRecordView, error) {
	records, err := s.store.InsightRecords(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("load insight records: %w", err)
	}
	views := make([]types.InsightRecordView, len(records))
	for i, rec := range records {
		views[i] = insightRecordView(rec)
	}
	return views, nil
}

// GetRatingCount returns how many ratings a track has received.
func (s *Service) GetRatingCount(ctx context.Context, trackID string) (int, error) {
	if _, err := s.store.GetTrack(ctx, trackID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("track %s: %w", trackID, ErrNotFound)
		}
		return 0, fmt.Errorf("load track: %w", err)
	}
	count, err := s.store.CountRatings(ctx, trackID)
	if err != nil {
		return 0, fmt.Errorf("count ratings: %w", err)
	}
	return count, nil
}

// GetProfile returns the rater's profile, creating it on first sight.
func (s *Service) GetProfile(ctx context.Context, raterID string) (types.ProfileView, error) {
	if raterID == "" {
		return types.ProfileView{}, ErrUnauthorized
	}
	if _, err := s.store.EnsureProfile(ctx, raterID, raterID, signupCredits); err != nil {
		return types.ProfileView{}, fmt.Errorf("ensure profile: %w", err)
	}
	profile, err := s.store.GetProfile(ctx, raterID)
	if err != nil {
		return types.ProfileView{}, fmt.Errorf("load profile: %w", err)
	}
	return types.ProfileView{
		ID:             profile.ID,
		Handle:         profile.Handle,
		Credits:        profile.Credits,
		TracksUploaded: profile.TracksUploaded,
		TracksRated:    profile.TracksRated,
		RatingProgress: profile.RatingProgress,
	}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"worker_count": s.workerCount,
		"queue_size":   s.queueSize,
	}
	if !s.started {
		return stats, nil
	}

	counts, err := s.store.GetCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load counts: %w", err)
	}
	stats["queue_length"] = s.jobQueue.Len(ctx)
	stats["jobs_in_flight"] = s.deduper.Size()
	stats["tracks"] = counts.Tracks
	stats["completed_tracks"] = counts.CompletedTracks
	stats["ratings"] = counts.Ratings
	stats["profiles"] = counts.Profiles
	stats["insight_records"] = counts.InsightRecords
	return stats, nil
}

func trackView(t *model.Track) types.TrackView {
	return types.TrackView{
		ID:              t.ID,
		OwnerID:         t.OwnerID,
		Title:           t.Title,
		GenreTags:       t.GenreTags,
		ProductionStage: t.ProductionStage,
		Status:          string(t.Status),
		VotesRequested:  t.VotesRequested,
		VotesReceived:   t.VotesReceived,
		OverallScore:    t.OverallScore,
		Percentile:      t.Percentile,
		ShareToken:      t.ShareToken,
	}
}

func insightRecordView(rec model.InsightRecord) types.InsightRecordView {
	view := types.InsightRecordView{
		Milestone: rec.Milestone,
		Status:    string(rec.Status),
		UpdatedAt: rec.UpdatedAt,
	}
	for _, ins := range rec.Insights {
		view.Insights = append(view.Insights, types.InsightView{
			Icon:        ins.Icon,
			Category:    ins.Category,
			Title:       ins.Title,
			Description: ins.Description,
			Polarity:    ins.Polarity,
		})
	}
	return view
}

func shareToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
