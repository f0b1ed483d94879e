package firestore

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/firestore"
)

func TestTransactionFromContext(t *testing.T) {
	if _, ok := TransactionFromContext(context.Background()); ok {
		t.Fatal("expected no transaction on a bare context")
	}

	tx := &firestore.Transaction{}
	ctx := WithTransaction(context.Background(), tx)
	got, ok := TransactionFromContext(ctx)
	if !ok || got != tx {
		t.Fatalf("expected attached transaction, got %v (ok=%v)", got, ok)
	}

	if same := WithTransaction(context.Background(), nil); same != context.Background() {
		t.Fatal("nil transaction must not be attached")
	}
}

func TestRunTransactionJoinsAmbientTransaction(t *testing.T) {
	ambient := &firestore.Transaction{}
	ctx := WithTransaction(context.Background(), ambient)

	var seen *firestore.Transaction
	err := RunTransaction(ctx, nil, func(_ context.Context, tx *firestore.Transaction) error {
		seen = tx
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	if seen != ambient {
		t.Fatal("expected nested call to reuse the ambient transaction")
	}

	sentinel := errors.New("boom")
	err = RunTransaction(ctx, nil, func(context.Context, *firestore.Transaction) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error passed through, got %v", err)
	}
}

func TestRunTransactionRequiresClient(t *testing.T) {
	err := RunTransaction(context.Background(), nil, func(context.Context, *firestore.Transaction) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected error without client or ambient transaction")
	}
}
