package db

import (
	"context"
	"testing"
)

func TestTxFromContext_Nil(t *testing.T) {
	tx := TxFromContext(context.Background())
	if tx != nil {
		t.Error("expected nil transaction from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	tx := TxFromContext(ctx)
	if tx != nil {
		t.Error("expected nil transaction for wrong value type")
	}
}

func TestWithTx_NilTx(t *testing.T) {
	ctx := context.Background()
	got := WithTx(ctx, nil)
	if got != ctx {
		t.Error("expected WithTx(nil) to return the original context")
	}
}
