// Package scan runs one matching pass for a case: it resolves the query
// image, ranks it against the dataset bucket, records every outcome in the
// audit trail and archives the best match as evidence.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/mpr/internal/config"
	apperrors "github.com/your-org/mpr/internal/errors"
	"github.com/your-org/mpr/internal/matching"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/observability"
)

const EventScanCompleted = "scan_completed"

// evidenceTimeFormat is used for the timestamp prefix of archived matches.
const evidenceTimeFormat = "20060102T150405Z"

type ImageResolver interface {
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

type ObjectStore interface {
	List(ctx context.Context, bucket string) ([]string, error)
	Fetch(ctx context.Context, bucket, name string) ([]byte, error)
	Upload(ctx context.Context, bucket, name string, data []byte) error
	PublicURL(ctx context.Context, bucket, name string) (string, error)
}

type AttemptStore interface {
	AppendAttempt(ctx context.Context, a *models.ScanAttempt) error
	RejectionCounts(ctx context.Context, caseID uuid.UUID, since time.Time) (map[string]int, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, caseID uuid.UUID, data any) error
}

type Ranker interface {
	Rank(ctx context.Context, query []byte, entries []matching.Entry, policy matching.Policy) (*matching.Ranking, error)
}

// Options configures an Orchestrator.
type Options struct {
	Buckets     config.BucketsConfig
	ImagePolicy matching.Policy // policy for submitted images
	SweepPolicy matching.Policy // policy for automated sweeps

	// SuppressAfterRejections excludes corpus images rejected at least this
	// many times for the case. Zero disables suppression.
	SuppressAfterRejections int
	RejectionCooldown       time.Duration
}

type Request struct {
	MissingPersonID uuid.UUID
	ImageRef        string
	Initiator       models.Initiator
	Trigger         models.ScanTrigger
}

func (r Request) validate() error {
	if r.MissingPersonID == uuid.Nil {
		return apperrors.NewInvalidInputError("missing person id is required", nil)
	}
	if r.ImageRef == "" {
		return apperrors.NewInvalidInputError("image reference is required", nil)
	}
	if err := r.Initiator.Validate(); err != nil {
		return apperrors.NewInvalidInputError("invalid initiator", err)
	}
	if r.Trigger != models.TriggerImage && r.Trigger != models.TriggerSweep {
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown trigger %q", r.Trigger), nil)
	}
	return nil
}

type Result struct {
	Matches            []models.MatchCandidate
	TotalImagesScanned int
	Skipped            []matching.Skip
	Suppressed         int
	EvidenceKey        string
}

type Orchestrator struct {
	resolver ImageResolver
	objects  ObjectStore
	attempts AttemptStore
	events   EventPublisher
	ranker   Ranker
	opts     Options
	now      func() time.Time
}

// NewOrchestrator wires a scan orchestrator. events may be nil.
func NewOrchestrator(resolver ImageResolver, objects ObjectStore, attempts AttemptStore, events EventPublisher, ranker Ranker, opts Options) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		objects:  objects,
		attempts: attempts,
		events:   events,
		ranker:   ranker,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one scan. Finding no match is a successful result. Audit and
// archive failures are logged and do not fail the scan; a cancelled scan
// writes nothing.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := o.run(ctx, req)

	outcome := "matched"
	switch {
	case err != nil:
		outcome = "error"
		if t, ok := apperrors.TypeOf(err); ok {
			outcome = string(t)
		}
	case len(res.Matches) == 0:
		outcome = "no_match"
	}
	observability.ScansTotal.WithLabelValues(string(req.Trigger), outcome).Inc()
	observability.ScanDuration.WithLabelValues(string(req.Trigger)).Observe(time.Since(start).Seconds())
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	// 1. Resolve query image
	query, err := o.resolver.Resolve(ctx, req.ImageRef)
	if err != nil {
		if _, ok := apperrors.TypeOf(err); !ok {
			err = apperrors.NewFetchError("fetch query image", err)
		}
		return nil, err
	}
	if len(query) == 0 {
		return nil, apperrors.NewInvalidInputError("query image is empty", nil)
	}

	// 2. Enumerate corpus
	names, err := o.objects.List(ctx, o.opts.Buckets.Dataset)
	if err != nil {
		return nil, apperrors.NewCorpusUnavailableError("list dataset bucket", err)
	}
	names, suppressed := o.suppress(ctx, req.MissingPersonID, names)

	// 3. Rank
	ranking, err := o.ranker.Rank(ctx, query, o.entries(names), o.policyFor(req.Trigger))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewCancelledError("scan cancelled", err)
		}
		if _, ok := apperrors.TypeOf(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("rank corpus: %w", err)
	}

	res := &Result{
		TotalImagesScanned: ranking.Scanned,
		Skipped:            ranking.Skipped,
		Suppressed:         suppressed,
		Matches:            make([]models.MatchCandidate, 0, len(ranking.Matches)),
	}

	// 4. Record attempts
	action := models.PresentationAction(req.Initiator, req.Trigger)
	for _, c := range ranking.Matches {
		mc := models.MatchCandidate{
			ImageName:       c.Name,
			ImageURL:        o.publicURL(ctx, c.Name),
			Confidence:      c.Confidence,
			MissingPersonID: req.MissingPersonID,
			Band:            c.Band,
		}
		name := c.Name
		caseID := req.MissingPersonID
		attempt := &models.ScanAttempt{
			ID:              uuid.New(),
			Initiator:       req.Initiator,
			ImageURL:        req.ImageRef,
			MatchedImage:    &name,
			MissingPersonID: &caseID,
			Confidence:      c.Confidence,
			Action:          action,
			CreatedAt:       o.now(),
		}
		if o.record(ctx, attempt) {
			mc.AttemptID = &attempt.ID
		}
		observability.MatchConfidence.Observe(c.Confidence)
		res.Matches = append(res.Matches, mc)
	}
	if len(ranking.Matches) == 0 {
		o.record(ctx, &models.ScanAttempt{
			ID:        uuid.New(),
			Initiator: req.Initiator,
			ImageURL:  req.ImageRef,
			Action:    action,
			CreatedAt: o.now(),
		})
	}

	// 5. Archive best match
	if best, ok := ranking.Best(); ok {
		res.EvidenceKey = o.archive(ctx, req.MissingPersonID, best.Name)
	}

	// 6. Publish
	o.publish(ctx, req, res)

	slog.Info("scan completed",
		"case", req.MissingPersonID,
		"trigger", req.Trigger,
		"initiator", req.Initiator.String(),
		"scanned", res.TotalImagesScanned,
		"matches", len(res.Matches),
		"skipped", len(res.Skipped),
	)
	return res, nil
}

func (o *Orchestrator) policyFor(trigger models.ScanTrigger) matching.Policy {
	if trigger == models.TriggerSweep {
		return o.opts.SweepPolicy
	}
	return o.opts.ImagePolicy
}

func (o *Orchestrator) entries(names []string) []matching.Entry {
	entries := make([]matching.Entry, len(names))
	for i, name := range names {
		entries[i] = matching.Entry{
			Name: name,
			Fetch: func(ctx context.Context) ([]byte, error) {
				return o.objects.Fetch(ctx, o.opts.Buckets.Dataset, name)
			},
		}
	}
	return entries
}

// suppress drops corpus images that reviewers have already rejected often
// enough for this case. Lookup failures leave the corpus unfiltered.
func (o *Orchestrator) suppress(ctx context.Context, caseID uuid.UUID, names []string) ([]string, int) {
	if o.opts.SuppressAfterRejections <= 0 || len(names) == 0 {
		return names, 0
	}

	var since time.Time
	if o.opts.RejectionCooldown > 0 {
		since = o.now().Add(-o.opts.RejectionCooldown)
	}
	counts, err := o.attempts.RejectionCounts(ctx, caseID, since)
	if err != nil {
		slog.Warn("load rejection counts", "case", caseID, "error", err)
		return names, 0
	}

	kept := names[:0:0]
	for _, name := range names {
		if counts[name] < o.opts.SuppressAfterRejections {
			kept = append(kept, name)
		}
	}
	return kept, len(names) - len(kept)
}

func (o *Orchestrator) publicURL(ctx context.Context, name string) string {
	u, err := o.objects.PublicURL(ctx, o.opts.Buckets.Dataset, name)
	if err != nil {
		slog.Warn("build public url", "name", name, "error", err)
		return ""
	}
	return u
}

func (o *Orchestrator) record(ctx context.Context, a *models.ScanAttempt) bool {
	if err := o.attempts.AppendAttempt(ctx, a); err != nil {
		observability.AuditWriteFailures.Inc()
		slog.Warn("record scan attempt", "case", a.MissingPersonID, "action", a.Action, "error", err)
		return false
	}
	return true
}

// EvidenceKey is the object name used when archiving a match.
func EvidenceKey(caseID uuid.UUID, at time.Time, imageName string) string {
	return fmt.Sprintf("case-%s/%s_%s", caseID, at.UTC().Format(evidenceTimeFormat), path.Base(imageName))
}

// archive copies the best match into the evidence bucket and returns its key,
// or "" when the copy failed.
func (o *Orchestrator) archive(ctx context.Context, caseID uuid.UUID, name string) string {
	data, err := o.objects.Fetch(ctx, o.opts.Buckets.Dataset, name)
	if err != nil {
		observability.ArchiveFailures.Inc()
		slog.Warn("archive best match", "case", caseID, "name", name, "error", err)
		return ""
	}

	key := EvidenceKey(caseID, o.now(), name)
	if err := o.objects.Upload(ctx, o.opts.Buckets.Evidence, key, data); err != nil {
		observability.ArchiveFailures.Inc()
		slog.Warn("archive best match", "case", caseID, "key", key, "error", err)
		return ""
	}
	return key
}

func (o *Orchestrator) publish(ctx context.Context, req Request, res *Result) {
	if o.events == nil {
		return
	}
	ev := models.ScanCompleted{
		MissingPersonID: req.MissingPersonID,
		Initiator:       req.Initiator,
		Trigger:         req.Trigger,
		Matches:         res.Matches,
		Scanned:         res.TotalImagesScanned,
		Skipped:         len(res.Skipped),
		EvidenceKey:     res.EvidenceKey,
		CompletedAt:     o.now(),
	}
	if err := o.events.PublishEvent(ctx, EventScanCompleted, req.MissingPersonID, ev); err != nil {
		slog.Warn("publish scan event", "case", req.MissingPersonID, "error", err)
	}
}
