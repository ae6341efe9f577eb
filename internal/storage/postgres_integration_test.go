//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	apperrors "github.com/your-org/mpr/internal/errors"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/review"
)

func setupTestContainer(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	store, err := NewPostgresStoreFromDSN(dsn, 5)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("create store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("migrate: %v", err)
	}

	return store, func() {
		store.Close()
		_ = container.Terminate(ctx)
	}
}

func seedPresentation(t *testing.T, store *PostgresStore) (*models.MissingPersonCase, *models.ScanAttempt) {
	t.Helper()
	ctx := context.Background()

	photo := "reports/jane.jpg"
	c := &models.MissingPersonCase{Name: "Jane Doe", PhotoURL: &photo}
	if err := store.CreateCase(ctx, c); err != nil {
		t.Fatalf("create case: %v", err)
	}

	matched := "cam-3/0142.jpg"
	officer := uuid.New()
	presented := &models.ScanAttempt{
		Initiator:       models.Human(officer),
		ImageURL:        photo,
		MatchedImage:    &matched,
		MissingPersonID: &c.ID,
		Confidence:      87.5,
		Action:          models.ActionScanned,
	}
	if err := store.AppendAttempt(ctx, presented); err != nil {
		t.Fatalf("append presented attempt: %v", err)
	}
	return c, presented
}

func TestPostgresStore(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("second migrate: %v", err)
		}
	})

	t.Run("AttemptRoundTrip", func(t *testing.T) {
		c, presented := seedPresentation(t, store)

		got, err := store.GetAttempt(ctx, presented.ID)
		if err != nil || got == nil {
			t.Fatalf("get attempt: %v", err)
		}
		if got.Initiator.Kind != models.InitiatorHuman || *got.Initiator.PoliceID != *presented.Initiator.PoliceID {
			t.Errorf("initiator not preserved: %+v", got.Initiator)
		}
		if *got.MissingPersonID != c.ID || got.Confidence != 87.5 {
			t.Errorf("unexpected attempt: %+v", got)
		}

		noMatch := &models.ScanAttempt{Initiator: models.System(), ImageURL: "x", Action: models.ActionAutomatedMatch}
		if err := store.AppendAttempt(ctx, noMatch); err != nil {
			t.Fatalf("append no-match attempt: %v", err)
		}

		missing, err := store.GetAttempt(ctx, uuid.New())
		if err != nil || missing != nil {
			t.Errorf("expected nil, nil for unknown attempt, got %v, %v", missing, err)
		}
	})

	t.Run("ConfirmInTx", func(t *testing.T) {
		c, presented := seedPresentation(t, store)

		err := store.InTx(ctx, func(tx review.CaseTx) error {
			if err := tx.MarkCaseFound(ctx, c.ID); err != nil {
				return err
			}
			return tx.AppendAttempt(ctx, &models.ScanAttempt{
				Initiator:       presented.Initiator,
				ImageURL:        presented.ImageURL,
				MatchedImage:    presented.MatchedImage,
				MissingPersonID: &c.ID,
				Confidence:      presented.Confidence,
				Action:          models.ActionConfirmed,
				ReviewOf:        &presented.ID,
			})
		})
		if err != nil {
			t.Fatalf("confirm tx: %v", err)
		}

		got, _ := store.GetCase(ctx, c.ID)
		if got.Status != models.CaseStatusFound {
			t.Errorf("status = %s; want found", got.Status)
		}
		decided, _ := store.HasDecision(ctx, presented.ID)
		if !decided {
			t.Error("expected decision recorded")
		}

		dup := &models.ScanAttempt{
			Initiator: presented.Initiator, ImageURL: presented.ImageURL,
			MissingPersonID: &c.ID, Action: models.ActionRejected, ReviewOf: &presented.ID,
		}
		if err := store.AppendAttempt(ctx, dup); !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			t.Errorf("expected conflict for second decision, got %v", err)
		}
	})

	t.Run("RollbackOnFailure", func(t *testing.T) {
		c, presented := seedPresentation(t, store)
		boom := errors.New("boom")

		err := store.InTx(ctx, func(tx review.CaseTx) error {
			if err := tx.AppendAttempt(ctx, &models.ScanAttempt{
				Initiator: presented.Initiator, ImageURL: presented.ImageURL,
				MissingPersonID: &c.ID, Action: models.ActionConfirmed, ReviewOf: &presented.ID,
			}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		decided, _ := store.HasDecision(ctx, presented.ID)
		if decided {
			t.Error("rolled back decision is visible")
		}
	})

	t.Run("HistoryAndRejections", func(t *testing.T) {
		c, presented := seedPresentation(t, store)
		reject := &models.ScanAttempt{
			Initiator: presented.Initiator, ImageURL: presented.ImageURL,
			MatchedImage: presented.MatchedImage, MissingPersonID: &c.ID,
			Confidence: presented.Confidence, Action: models.ActionRejected, ReviewOf: &presented.ID,
		}
		if err := store.AppendAttempt(ctx, reject); err != nil {
			t.Fatalf("append rejection: %v", err)
		}

		history, err := store.History(ctx, c.ID)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 2 || history[0].ID != presented.ID || history[1].ID != reject.ID {
			t.Errorf("unexpected history: %+v", history)
		}

		counts, err := store.RejectionCounts(ctx, c.ID, time.Time{})
		if err != nil {
			t.Fatalf("rejection counts: %v", err)
		}
		if counts[*presented.MatchedImage] != 1 {
			t.Errorf("counts = %v", counts)
		}

		open, err := store.ListOpenCasesWithPhoto(ctx)
		if err != nil {
			t.Fatalf("list open cases: %v", err)
		}
		found := false
		for _, oc := range open {
			found = found || oc.ID == c.ID
		}
		if !found {
			t.Error("expected case in open list")
		}
	})
}
