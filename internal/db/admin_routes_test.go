package db

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// debugRequest builds a request that passes the tsweb debug access
// check, which only admits loopback callers outside a tailnet.
func debugRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:54321"
	return req
}

func TestAttachAdminRoutes_DBStats(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	// Insert some test data to make stats meaningful
	if err := db.InsertSession(testSession("ses_stats")); err != nil {
		t.Fatalf("Failed to insert test data: %v", err)
	}

	httpMux := http.NewServeMux()
	db.AttachAdminRoutes(httpMux)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, debugRequest(t, "/debug/db-stats"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /debug/db-stats, got %d: %s", w.Code, w.Body.String())
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %s", contentType)
	}

	var stats DatabaseStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats response: %v", err)
	}

	if stats.TotalSizeMB <= 0 {
		t.Error("Expected positive total size")
	}

	var sessionsTable *TableStats
	for i := range stats.Tables {
		if stats.Tables[i].Name == "sessions" {
			sessionsTable = &stats.Tables[i]
		}
	}
	if sessionsTable == nil {
		t.Fatal("Expected sessions table in stats")
	}
	if sessionsTable.RowCount != 1 {
		t.Errorf("Expected 1 row in sessions, got %d", sessionsTable.RowCount)
	}
}

func TestAttachAdminRoutes_Tailsql(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	httpMux := http.NewServeMux()
	db.AttachAdminRoutes(httpMux)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, debugRequest(t, "/debug/tailsql/"))

	// The tailsql UI answers; anything but an unregistered route will do
	if w.Code == http.StatusNotFound {
		t.Error("Route /debug/tailsql/ should be registered, got 404")
	}
}

// TestBackupEndpoint_FileCleanup verifies the backup downloads as gzip and
// the temporary VACUUM file is removed after the response is sent
func TestBackupEndpoint_FileCleanup(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	// Save and restore working directory using t.Cleanup
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldWd); err != nil {
			t.Errorf("Failed to restore working directory: %v", err)
		}
	})

	// Change to temp dir so backup files are created there
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change to temp directory: %v", err)
	}

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if err := db.InsertSession(testSession("ses_backup")); err != nil {
		t.Fatalf("Failed to insert test data: %v", err)
	}

	httpMux := http.NewServeMux()
	db.AttachAdminRoutes(httpMux)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, debugRequest(t, "/debug/backup"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /debug/backup, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Disposition") == "" {
		t.Error("Expected Content-Disposition header for backup download")
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("Expected gzip Content-Encoding, got %q", w.Header().Get("Content-Encoding"))
	}

	// The body is a gzipped SQLite file
	gz, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("backup body is not gzip: %v", err)
	}
	header := make([]byte, 16)
	if _, err := io.ReadFull(gz, header); err != nil {
		t.Fatalf("failed to read backup content: %v", err)
	}
	if string(header[:15]) != "SQLite format 3" {
		t.Errorf("backup does not look like a SQLite file: %q", header)
	}

	// The VACUUM INTO file is removed once the response is written
	leftover, err := filepath.Glob("backup-*.db")
	if err != nil {
		t.Fatalf("Failed to list files after backup: %v", err)
	}
	if len(leftover) != 0 {
		t.Errorf("backup files not cleaned up: %v", leftover)
	}
}
