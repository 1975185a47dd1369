package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
	"github.com/hamed0406/uptimemon/internal/repo/repotest"
)

func TestSQLiteStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store {
		s, err := New(context.Background(), ":memory:")
		if err != nil {
			t.Fatalf("failed to create sqlite store: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "uptimemon.db")

	s, err := New(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m := repotest.Monitor("a")
	if err := s.UpsertMonitor(ctx, m); err != nil {
		t.Fatalf("UpsertMonitor: %v", err)
	}
	if err := s.UpdateMonitorStatus(ctx, "a", domain.StatusUpdate{Status: domain.StatusUp, CheckCount: 4, FailCount: 1, Uptime: 75}); err != nil {
		t.Fatalf("UpdateMonitorStatus: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.GetMonitor(ctx, "a")
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.CheckCount != 4 || got.FailCount != 1 || got.Uptime != 75 || got.Status != domain.StatusUp {
		t.Fatalf("status fields lost across reopen: %+v", got)
	}
}
