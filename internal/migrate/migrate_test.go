package migrate

import (
	"context"
	"path/filepath"
	"testing"
)

func TestUpDownSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "ticker.db")

	if err := Up(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Up: %v", err)
	}
	v, err := Version(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}

	// Re-running is a no-op.
	if err := Up(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("second Up: %v", err)
	}

	if err := Down(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if v, _ := Version(ctx, "sqlite", dsn); v != 1 {
		t.Fatalf("version after Down = %d, want 1", v)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if err := Up(context.Background(), "mysql", ""); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
