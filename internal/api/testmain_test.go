package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/mde-formula-finder/internal/db"
	"github.com/banshee-data/mde-formula-finder/internal/monitoring"
)

var apiTestTemplatePath string

// TestMain migrates one template database; tests copy it instead of
// running migrations each time.
func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(runAPITestMain(m))
}

func runAPITestMain(m *testing.M) int {
	tmpDir, err := os.MkdirTemp("", "fuelfit-api-template-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create API test template directory: %v\n", err)
		return 1
	}
	defer os.RemoveAll(tmpDir)

	apiTestTemplatePath = filepath.Join(tmpDir, "template.db")
	templateDB, err := db.NewDB(apiTestTemplatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize API test template DB: %v\n", err)
		return 1
	}
	if _, err := templateDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to checkpoint API test template DB: %v\n", err)
		templateDB.Close()
		return 1
	}
	if err := templateDB.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close API test template DB: %v\n", err)
		return 1
	}
	return m.Run()
}

// cloneTestDB opens a private copy of the migrated template.
func cloneTestDB(t *testing.T) *db.DB {
	t.Helper()
	if apiTestTemplatePath == "" {
		t.Fatal("API test template DB not initialized")
	}
	dst := filepath.Join(t.TempDir(), "archive.db")

	src, err := os.Open(apiTestTemplatePath)
	if err != nil {
		t.Fatalf("open template: %v", err)
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		t.Fatalf("create clone: %v", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		t.Fatalf("copy template: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close clone: %v", err)
	}

	d, err := db.NewDB(dst)
	if err != nil {
		t.Fatalf("open clone: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}
