package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/TorentoFlag/skin-vault/internal/storage/postgres"
	"github.com/TorentoFlag/skin-vault/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestTransactionRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewTransactionRepository(pool)
	userID := testutil.InsertUser(t, ctx, pool, "76561198000000003", "")

	older := domain.Transaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Type:            domain.TransactionTypePayment,
		Amount:          decimal.RequireFromString("10.00"),
		Status:          domain.TransactionStatusCompleted,
		StripeSessionID: "cs_old",
		CreatedAt:       time.Now().UTC().Add(-time.Hour),
	}
	newer := older
	newer.ID = uuid.NewString()
	newer.StripeSessionID = "cs_new"
	newer.Amount = decimal.RequireFromString("25.00")
	newer.Status = domain.TransactionStatusPending
	newer.CreatedAt = time.Now().UTC()

	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("create older txn: %v", err)
	}
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("create newer txn: %v", err)
	}

	t.Run("find latest filters on status", func(t *testing.T) {
		got, err := repo.FindLatest(ctx, userID, domain.TransactionTypePayment, domain.TransactionStatusCompleted)
		if err != nil {
			t.Fatalf("find latest: %v", err)
		}
		if got == nil || got.ID != older.ID {
			t.Fatalf("expected completed txn %s, got %+v", older.ID, got)
		}
	})

	t.Run("find latest returns nil when none match", func(t *testing.T) {
		got, err := repo.FindLatest(ctx, userID, domain.TransactionTypeRefund, domain.TransactionStatusCompleted)
		if err != nil {
			t.Fatalf("find latest: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})

	t.Run("update by session is conditional on current status", func(t *testing.T) {
		if err := repo.UpdateStatusBySession(ctx, "cs_new", userID, domain.TransactionStatusPending, domain.TransactionStatusCompleted); err != nil {
			t.Fatalf("update by session: %v", err)
		}
		got, err := repo.FindLatest(ctx, userID, domain.TransactionTypePayment, domain.TransactionStatusCompleted)
		if err != nil {
			t.Fatalf("find latest: %v", err)
		}
		if got == nil || got.ID != newer.ID {
			t.Fatalf("expected session txn completed, got %+v", got)
		}
	})
}
