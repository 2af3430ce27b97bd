package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/homework-review-api/internal/models"
	"github.com/noah-isme/homework-review-api/internal/repository"
	"github.com/noah-isme/homework-review-api/pkg/aichat"
	"github.com/noah-isme/homework-review-api/pkg/jobs"
)

// ReviewJobType tags review jobs on the shared queue.
const ReviewJobType = "ai_review"

const (
	reviewSystemPrompt = "You are a homework review assistant. Decide whether the images are student homework. " +
		"Output only JSON and nothing else."
	reviewFormatInstruction = "Answer strictly in the following JSON format without any other text or explanation:\n" +
		"{\"ok\": true}  or  {\"ok\": false}"
	defaultReviewPrompt = "Look carefully at these images and decide whether they look like homework handed in by a student " +
		"(for example exercise books, test papers, worksheets or handwritten work).\n\n" + reviewFormatInstruction +
		"\n\nok=true means the images look like homework, ok=false means they do not."
	customReviewSuffix = "\n\n" + reviewFormatInstruction +
		"\n\nok=true means the images meet the requirements, ok=false means they do not."
)

var (
	errMalformedVerdict = errors.New("ai reply is not a {\"ok\": bool} object")
	errNoSession        = errors.New("no ai session available")

	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

type reviewSubmissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	Transition(ctx context.Context, id string, update models.StatusUpdate) (bool, error)
	SetDiagnostic(ctx context.Context, id string, status models.ReviewStatus, diagnostic string) (bool, error)
}

type reviewImageLister interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]models.SubmissionImage, error)
}

type homeworkFinder interface {
	FindByID(ctx context.Context, id string) (*models.Homework, error)
}

type cascadeDeleter interface {
	Delete(ctx context.Context, scope models.DeleteScope, remove repository.FileRemover) (repository.CascadeResult, error)
}

type chatStreamer interface {
	StreamChat(ctx context.Context, token string, request aichat.ChatRequest) (string, error)
}

type sessionTokenSource interface {
	GetOrRefresh(ctx context.Context) (string, bool)
	Invalidate()
}

// ReviewWorkerConfig tunes the review attempt loop.
type ReviewWorkerConfig struct {
	Model      string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
	Policy     models.RejectionPolicy
}

// ReviewWorkerParams groups constructor dependencies.
type ReviewWorkerParams struct {
	Submissions reviewSubmissionStore
	Images      reviewImageLister
	Homeworks   homeworkFinder
	Cascade     cascadeDeleter
	Files       FileStore
	Chat        chatStreamer
	Credentials sessionTokenSource
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      ReviewWorkerConfig
}

// ReviewWorker runs one AI review per queued submission.
type ReviewWorker struct {
	submissions reviewSubmissionStore
	images      reviewImageLister
	homeworks   homeworkFinder
	cascade     cascadeDeleter
	files       FileStore
	chat        chatStreamer
	credentials sessionTokenSource
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.SugaredLogger
	cfg         ReviewWorkerConfig
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewReviewWorker constructs a worker.
func NewReviewWorker(p ReviewWorkerParams) *ReviewWorker {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := p.Config
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Policy == "" {
		cfg.Policy = models.PolicyMarkAbnormal
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ReviewWorker{
		submissions: p.Submissions,
		images:      p.Images,
		homeworks:   p.Homeworks,
		cascade:     p.Cascade,
		files:       p.Files,
		chat:        p.Chat,
		credentials: p.Credentials,
		cache:       p.Cache,
		metrics:     p.Metrics,
		logger:      logger.Sugar(),
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepContext,
	}
}

// Handle processes one review job. The job ID is the submission id.
func (w *ReviewWorker) Handle(ctx context.Context, job jobs.Job) (err error) {
	submissionID := job.ID
	start := time.Now()
	outcome := "error"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("review panicked: %v", r)
		}
		if err != nil {
			w.logger.Errorw("ai review aborted", "submission_id", submissionID, "error", err)
			w.forceError(submissionID, err)
		}
		w.metrics.RecordReviewOutcome(outcome, time.Since(start))
	}()

	outcome, err = w.review(ctx, submissionID)
	return err
}

func (w *ReviewWorker) review(ctx context.Context, submissionID string) (string, error) {
	submission, err := w.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Infow("submission vanished before review", "submission_id", submissionID)
			return "skipped", nil
		}
		return "error", fmt.Errorf("load submission: %w", err)
	}
	if submission.ReviewStatus != models.ReviewReviewing {
		w.logger.Infow("submission no longer reviewing", "submission_id", submissionID, "status", submission.ReviewStatus)
		return "skipped", nil
	}

	marked, err := w.submissions.SetDiagnostic(ctx, submissionID, models.ReviewReviewing, models.DiagnosticInProgress)
	if err != nil {
		return "error", err
	}
	if !marked {
		return "skipped", nil
	}

	images, err := w.images.ListBySubmission(ctx, submissionID)
	if err != nil {
		return "error", fmt.Errorf("load images: %w", err)
	}
	if len(images) == 0 {
		return w.finish(ctx, submissionID, models.ReviewApproved, models.DiagnosticNoImages, "approved")
	}

	homework, err := w.homeworks.FindByID(ctx, submission.HomeworkID)
	if err != nil {
		return "error", fmt.Errorf("load homework: %w", err)
	}
	request := w.buildRequest(homework, images)

	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 1 && w.cfg.RetryDelay > 0 {
			if err := w.sleep(ctx, w.cfg.RetryDelay); err != nil {
				return "error", err
			}
		}

		ok, err := w.attempt(ctx, request)
		if err != nil {
			w.metrics.RecordReviewAttempt("failed")
			w.logger.Warnw("ai review attempt failed", "submission_id", submissionID, "attempt", attempt, "max_attempts", w.cfg.MaxRetries, "error", err)
			if ctx.Err() != nil {
				return "error", ctx.Err()
			}
			continue
		}
		w.metrics.RecordReviewAttempt("verdict")
		w.logger.Infow("ai review verdict", "submission_id", submissionID, "attempt", attempt, "ok", ok)

		if ok {
			return w.finish(ctx, submissionID, models.ReviewApproved, models.DiagnosticPassed, "approved")
		}
		return w.applyRejection(ctx, submissionID)
	}

	w.logger.Warnw("ai review retries exhausted", "submission_id", submissionID, "attempts", w.cfg.MaxRetries)
	return w.finishFailure(ctx, submissionID, models.DiagnosticExhausted)
}

func (w *ReviewWorker) attempt(ctx context.Context, request aichat.ChatRequest) (bool, error) {
	token, ok := w.credentials.GetOrRefresh(ctx)
	if !ok {
		return false, errNoSession
	}
	reply, err := w.chat.StreamChat(ctx, token, request)
	if err != nil {
		if errors.Is(err, aichat.ErrUnauthorized) {
			w.credentials.Invalidate()
		}
		return false, err
	}
	return ParseVerdict(reply)
}

func (w *ReviewWorker) applyRejection(ctx context.Context, submissionID string) (string, error) {
	if w.cfg.Policy.DeletesSubmission() {
		return w.rejectAndDelete(ctx, submissionID)
	}
	if w.cfg.Policy == models.PolicyIgnore {
		return w.finish(ctx, submissionID, models.ReviewRejected, models.DiagnosticIgnored, "ignored")
	}
	return w.finish(ctx, submissionID, models.ReviewRejected, models.DiagnosticFlagged, "rejected")
}

func (w *ReviewWorker) rejectAndDelete(ctx context.Context, submissionID string) (string, error) {
	outcome, err := w.finish(ctx, submissionID, models.ReviewRejected, models.DiagnosticRejected, "deleted")
	if err != nil || outcome == "skipped" {
		return outcome, err
	}
	if _, err := w.cascade.Delete(ctx, models.DeleteScope{SubmissionID: submissionID}, RemoveFiles(w.files)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return outcome, nil
		}
		w.logger.Errorw("delete rejected submission failed", "submission_id", submissionID, "error", err)
		// the row stays rejected for a teacher override, so it must not claim removal
		if _, derr := w.submissions.SetDiagnostic(ctx, submissionID, models.ReviewRejected, models.DiagnosticRemovalFailed); derr != nil {
			w.logger.Errorw("rewrite rejection diagnostic failed", "submission_id", submissionID, "error", derr)
		}
		w.cache.InvalidateBoard(ctx)
		return "rejected", nil
	}
	w.cache.InvalidateBoard(ctx)
	return outcome, nil
}

func (w *ReviewWorker) finish(ctx context.Context, submissionID string, to models.ReviewStatus, diagnostic, outcome string) (string, error) {
	changed, err := w.submissions.Transition(ctx, submissionID, models.StatusUpdate{
		To:         to,
		Trigger:    models.TriggerVerdict,
		Diagnostic: diagnostic,
		At:         w.now(),
	})
	if err != nil {
		return "error", err
	}
	if !changed {
		w.logger.Infow("review result discarded, status changed meanwhile", "submission_id", submissionID, "result", to)
		return "skipped", nil
	}
	w.cache.InvalidateBoard(ctx)
	w.logger.Infow("ai review completed", "submission_id", submissionID, "status", to, "result", diagnostic)
	return outcome, nil
}

func (w *ReviewWorker) finishFailure(ctx context.Context, submissionID, diagnostic string) (string, error) {
	changed, err := w.submissions.Transition(ctx, submissionID, models.StatusUpdate{
		To:         models.ReviewError,
		Trigger:    models.TriggerFailure,
		Diagnostic: diagnostic,
		At:         w.now(),
	})
	if err != nil {
		return "error", err
	}
	if !changed {
		return "skipped", nil
	}
	w.cache.InvalidateBoard(ctx)
	return "error", nil
}

// forceError runs on a detached context so shutdown cancellation does not leave the row reviewing.
func (w *ReviewWorker) forceError(submissionID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	diagnostic := fmt.Sprintf("AI review failed: %v", cause)
	if _, err := w.finishFailure(ctx, submissionID, diagnostic); err != nil {
		w.logger.Errorw("mark review error failed", "submission_id", submissionID, "error", err)
	}
}

func (w *ReviewWorker) buildRequest(homework *models.Homework, images []models.SubmissionImage) aichat.ChatRequest {
	prompt := defaultReviewPrompt
	if homework != nil && homework.AIPrompt != nil && strings.TrimSpace(*homework.AIPrompt) != "" {
		prompt = strings.TrimSpace(*homework.AIPrompt) + customReviewSuffix
	}
	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, fmt.Sprintf("%s/uploads/%s", w.cfg.BaseURL, img.Filename))
	}
	return aichat.NewVisionRequest(w.cfg.Model, reviewSystemPrompt, prompt, urls)
}

// StripCodeFence removes a surrounding markdown code fence from a model reply.
func StripCodeFence(reply string) string {
	cleaned := strings.TrimSpace(reply)
	cleaned = fenceOpen.ReplaceAllString(cleaned, "")
	cleaned = fenceClose.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// ParseVerdict extracts the boolean ok field from a model reply.
func ParseVerdict(reply string) (bool, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(StripCodeFence(reply)), &payload); err != nil {
		return false, fmt.Errorf("%w: %v", errMalformedVerdict, err)
	}
	ok, isBool := payload["ok"].(bool)
	if !isBool {
		return false, errMalformedVerdict
	}
	return ok, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
