package shared

import (
	"path/filepath"
	"testing"
)

func TestNewDatabase(t *testing.T) {
	for _, path := range []string{":memory:", filepath.Join(t.TempDir(), "history.db")} {
		t.Run(path, func(t *testing.T) {
			db, err := NewDatabase(path)
			if err != nil {
				t.Fatalf("failed to open database: %v", err)
			}
			defer db.Close()

			var timeout int
			if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
				t.Fatalf("failed to read busy_timeout: %v", err)
			}
			if timeout != BusyTimeoutMS {
				t.Errorf("expected busy_timeout %d, got %d", BusyTimeoutMS, timeout)
			}

			var fk int
			if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
				t.Fatalf("failed to read foreign_keys: %v", err)
			}
			if fk != 1 {
				t.Error("expected foreign keys to be enabled")
			}
		})
	}
}
