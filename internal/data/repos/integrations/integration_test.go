package integrations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/data/repos/testutil"
	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
)

func TestIntegrationRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewIntegrationRepo(db, testutil.Logger(t))

	seeded := testutil.SeedIntegration(t, ctx, tx, "tenant-a")

	got, err := repo.GetByID(dbc, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Namespace != "tenant-a" || got.Status != types.StatusNotStarted {
		t.Fatalf("GetByID: unexpected row %+v", got)
	}

	if _, err := repo.GetByID(dbc, uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("GetByID missing: expected ErrNotFound, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := repo.MarkQueued(dbc, seeded.ID, now); err != nil {
		t.Fatalf("MarkQueued: %v", err)
	}
	got, err = repo.GetByID(dbc, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID after MarkQueued: %v", err)
	}
	if got.Status != types.StatusQueued {
		t.Fatalf("MarkQueued: status = %s", got.Status)
	}
	if got.LastRun == nil || got.LastRun.Unix() != now.Unix() {
		t.Fatalf("MarkQueued: last_run = %v, want %v", got.LastRun, now)
	}

	if err := repo.SetStatus(dbc, seeded.ID, types.StatusFailed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ = repo.GetByID(dbc, seeded.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("SetStatus: status = %s", got.Status)
	}

	other := testutil.SeedIntegration(t, ctx, tx, "tenant-b")
	rows, err := repo.ListByNamespace(dbc, "tenant-a")
	if err != nil {
		t.Fatalf("ListByNamespace: %v", err)
	}
	for _, row := range rows {
		if row.ID == other.ID {
			t.Fatalf("ListByNamespace leaked row from another namespace")
		}
	}

	if err := repo.Delete(dbc, seeded.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(dbc, seeded.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("GetByID after delete: expected ErrNotFound, got %v", err)
	}
}
