package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestTableIdentifier(t *testing.T) {
	tests := []struct {
		table string
		want  string
	}{
		{"user_metadata_data_17_42", `"user_metadata_data_17_42"`},
		{"udu.user_feature_defs", `"udu"."user_feature_defs"`},
		{`evil"; DROP TABLE x; --`, `"evil""; DROP TABLE x; --"`},
	}

	for _, tt := range tests {
		got, err := TableIdentifier(tt.table)
		if err != nil {
			t.Errorf("TableIdentifier(%q): unexpected error: %v", tt.table, err)
			continue
		}
		if got != tt.want {
			t.Errorf("TableIdentifier(%q) = %s, want %s", tt.table, got, tt.want)
		}
	}
}

func TestTableIdentifier_Invalid(t *testing.T) {
	for _, table := range []string{"", "  ", "a.b.c", ".table", "schema."} {
		if _, err := TableIdentifier(table); !errors.Is(err, ErrInvalidTable) {
			t.Errorf("TableIdentifier(%q): expected ErrInvalidTable, got %v", table, err)
		}
	}
}

func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("empty string should become NULL")
	}
	if v := nullIfEmpty("x"); v == nil || *v != "x" {
		t.Errorf("expected pointer to x, got %v", v)
	}
}

// fakeTx: заглушка pgx.Tx, её методы не вызываются.
type fakeTx struct {
	pgx.Tx
}

func TestMetadataRepo_UsesTransactionFromContext(t *testing.T) {
	r := &MetadataRepo{}
	tx := &fakeTx{}

	ctx := context.WithValue(context.Background(), txKey{}, pgx.Tx(tx))
	if got := r.db(ctx); got != tx {
		t.Errorf("expected transaction from context, got %v", got)
	}
}

func TestMetadataRepo_EmptyInsertsSkipDatabase(t *testing.T) {
	r := &MetadataRepo{}
	ctx := context.Background()

	if err := r.InsertMetadataSamples(ctx, "bad..table", nil); err != nil {
		t.Errorf("InsertMetadataSamples(nil): %v", err)
	}
	if err := r.InsertMetadataData(ctx, "bad..table", nil); err != nil {
		t.Errorf("InsertMetadataData(nil): %v", err)
	}
}
