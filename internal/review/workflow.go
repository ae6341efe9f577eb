// Package review records reviewer decisions on presented match candidates
// and drives the missing -> found case transition.
package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/your-org/mpr/internal/errors"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/observability"
)

// EventReviewDecided is the event type published after every decision.
const EventReviewDecided = "review_decided"

// CaseTx is the transactional slice of the store used by Confirm.
type CaseTx interface {
	MarkCaseFound(ctx context.Context, caseID uuid.UUID) error
	AppendAttempt(ctx context.Context, a *models.ScanAttempt) error
}

// Store is the audit and case store. GetAttempt and GetCase return nil, nil
// when the record does not exist.
type Store interface {
	GetAttempt(ctx context.Context, id uuid.UUID) (*models.ScanAttempt, error)
	HasDecision(ctx context.Context, presentedID uuid.UUID) (bool, error)
	GetCase(ctx context.Context, id uuid.UUID) (*models.MissingPersonCase, error)
	AppendAttempt(ctx context.Context, a *models.ScanAttempt) error
	History(ctx context.Context, caseID uuid.UUID) ([]models.ScanAttempt, error)
	InTx(ctx context.Context, fn func(CaseTx) error) error
}

// Notifier tells the case's reporter that the person was found.
type Notifier interface {
	NotifyCaseFound(ctx context.Context, n models.CaseFound) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, caseID uuid.UUID, data any) error
}

// Decision is the outcome of Confirm or Reject.
type Decision struct {
	CaseID  uuid.UUID
	Status  models.CaseStatus
	Attempt *models.ScanAttempt
}

type Workflow struct {
	store    Store
	notifier Notifier
	events   EventPublisher
	now      func() time.Time
}

// NewWorkflow wires the review workflow. notifier and events may be nil.
func NewWorkflow(store Store, notifier Notifier, events EventPublisher) *Workflow {
	return &Workflow{
		store:    store,
		notifier: notifier,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Confirm accepts a presented candidate. The case is set to found and a
// confirmed attempt is appended in one transaction; if the status update
// fails nothing is written. The reporter is notified after commit.
func (w *Workflow) Confirm(ctx context.Context, candidateID uuid.UUID, initiator models.Initiator) (*Decision, error) {
	presented, err := w.loadPresented(ctx, candidateID, initiator)
	if err != nil {
		observability.ReviewDecisions.WithLabelValues(string(models.ActionConfirmed), outcomeOf(err)).Inc()
		return nil, err
	}
	caseID := *presented.MissingPersonID
	decision := w.decisionAttempt(presented, models.ActionConfirmed, initiator)

	err = w.store.InTx(ctx, func(tx CaseTx) error {
		if err := tx.MarkCaseFound(ctx, caseID); err != nil {
			return apperrors.NewConfirmationFailedError("set case status to found", err)
		}
		return tx.AppendAttempt(ctx, decision)
	})
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeConfirmationFailed) && !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			err = apperrors.NewConfirmationFailedError("record confirmation", err)
		}
		observability.ReviewDecisions.WithLabelValues(string(models.ActionConfirmed), outcomeOf(err)).Inc()
		slog.Error("confirmation failed", "candidate", candidateID, "case", caseID, "error", err)
		return nil, err
	}
	observability.ReviewDecisions.WithLabelValues(string(models.ActionConfirmed), "ok").Inc()
	slog.Info("match confirmed", "candidate", candidateID, "case", caseID, "by", initiator.String())

	w.notifyFound(ctx, presented, decision)
	w.publish(ctx, presented, decision, models.CaseStatusFound)

	return &Decision{CaseID: caseID, Status: models.CaseStatusFound, Attempt: decision}, nil
}

// Reject records that a presented candidate is not the missing person. The
// case is left untouched and its current status is returned.
func (w *Workflow) Reject(ctx context.Context, candidateID uuid.UUID, initiator models.Initiator) (*Decision, error) {
	presented, err := w.loadPresented(ctx, candidateID, initiator)
	if err != nil {
		observability.ReviewDecisions.WithLabelValues(string(models.ActionRejected), outcomeOf(err)).Inc()
		return nil, err
	}
	caseID := *presented.MissingPersonID

	c, err := w.store.GetCase(ctx, caseID)
	if err != nil {
		observability.ReviewDecisions.WithLabelValues(string(models.ActionRejected), "error").Inc()
		return nil, apperrors.NewPersistenceError("load case", err)
	}
	if c == nil {
		observability.ReviewDecisions.WithLabelValues(string(models.ActionRejected), "not_found").Inc()
		return nil, apperrors.NewNotFoundError("case "+caseID.String()+" not found", nil)
	}

	decision := w.decisionAttempt(presented, models.ActionRejected, initiator)
	if err := w.store.AppendAttempt(ctx, decision); err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			err = apperrors.NewPersistenceError("record rejection", err)
		}
		observability.ReviewDecisions.WithLabelValues(string(models.ActionRejected), outcomeOf(err)).Inc()
		return nil, err
	}
	observability.ReviewDecisions.WithLabelValues(string(models.ActionRejected), "ok").Inc()
	slog.Info("match rejected", "candidate", candidateID, "case", caseID, "by", initiator.String())

	w.publish(ctx, presented, decision, c.Status)
	return &Decision{CaseID: caseID, Status: c.Status, Attempt: decision}, nil
}

// History returns every attempt recorded for a case, oldest first.
func (w *Workflow) History(ctx context.Context, caseID uuid.UUID) ([]models.ScanAttempt, error) {
	attempts, err := w.store.History(ctx, caseID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load history", err)
	}
	if attempts == nil {
		attempts = []models.ScanAttempt{}
	}
	return attempts, nil
}

// loadPresented returns the attempt a decision refers to, provided it
// presented a real candidate and has not been decided yet.
func (w *Workflow) loadPresented(ctx context.Context, candidateID uuid.UUID, initiator models.Initiator) (*models.ScanAttempt, error) {
	if err := initiator.Validate(); err != nil {
		return nil, apperrors.NewInvalidInputError("invalid reviewer", err)
	}

	presented, err := w.store.GetAttempt(ctx, candidateID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load candidate", err)
	}
	if presented == nil {
		return nil, apperrors.NewNotFoundError("candidate "+candidateID.String()+" not found", nil)
	}
	if !presented.Action.IsPresentation() {
		return nil, apperrors.NewConflictError("attempt "+candidateID.String()+" is a decision, not a candidate", nil)
	}
	if presented.MissingPersonID == nil || presented.MatchedImage == nil {
		return nil, apperrors.NewConflictError("attempt "+candidateID.String()+" recorded no match", nil)
	}

	decided, err := w.store.HasDecision(ctx, candidateID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("check decision", err)
	}
	if decided {
		return nil, apperrors.NewConflictError("candidate "+candidateID.String()+" already reviewed", nil)
	}
	return presented, nil
}

func (w *Workflow) decisionAttempt(presented *models.ScanAttempt, action models.Action, initiator models.Initiator) *models.ScanAttempt {
	reviewOf := presented.ID
	return &models.ScanAttempt{
		ID:              uuid.New(),
		Initiator:       initiator,
		ImageURL:        presented.ImageURL,
		MatchedImage:    presented.MatchedImage,
		MissingPersonID: presented.MissingPersonID,
		Confidence:      presented.Confidence,
		Action:          action,
		ReviewOf:        &reviewOf,
		CreatedAt:       w.now(),
	}
}

func (w *Workflow) notifyFound(ctx context.Context, presented, decision *models.ScanAttempt) {
	if w.notifier == nil {
		return
	}
	n := models.CaseFound{
		MissingPersonID: *presented.MissingPersonID,
		CandidateID:     presented.ID,
		MatchedImage:    *presented.MatchedImage,
		Confidence:      presented.Confidence,
		ConfirmedBy:     decision.Initiator,
		ConfirmedAt:     decision.CreatedAt,
	}
	if c, err := w.store.GetCase(ctx, n.MissingPersonID); err != nil {
		slog.Warn("load case for notification", "case", n.MissingPersonID, "error", err)
	} else if c != nil {
		n.ReporterID = c.ReporterID
	}

	if err := w.notifier.NotifyCaseFound(ctx, n); err != nil {
		slog.Warn("notify case found", "case", n.MissingPersonID, "error", err)
	}
}

func (w *Workflow) publish(ctx context.Context, presented, decision *models.ScanAttempt, status models.CaseStatus) {
	if w.events == nil {
		return
	}
	ev := models.ReviewDecided{
		AttemptID:       decision.ID,
		CandidateID:     presented.ID,
		MissingPersonID: *presented.MissingPersonID,
		Action:          decision.Action,
		Status:          status,
		Initiator:       decision.Initiator,
		Confidence:      decision.Confidence,
		DecidedAt:       decision.CreatedAt,
	}
	if err := w.events.PublishEvent(ctx, EventReviewDecided, ev.MissingPersonID, ev); err != nil {
		slog.Warn("publish review event", "case", ev.MissingPersonID, "error", err)
	}
}

func outcomeOf(err error) string {
	if t, ok := apperrors.TypeOf(err); ok {
		return string(t)
	}
	return "error"
}
