package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "config.yaml")

	data := []byte("logging:\n  level: info\n")
	if err := atomicWrite(testPath, data); err != nil {
		t.Fatalf("atomicWrite failed: %v", err)
	}

	if _, err := os.Stat(testPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file was not cleaned up")
	}

	readData, err := os.ReadFile(testPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(readData) != string(data) {
		t.Errorf("content mismatch: got %q, want %q", string(readData), string(data))
	}
}

func TestAtomicWriteCreatesDir(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "subdir", "config.yaml")

	if err := atomicWrite(testPath, []byte("x: 1\n")); err != nil {
		t.Fatalf("atomicWrite failed: %v", err)
	}
	if _, err := os.Stat(testPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
}

func TestBackupConfigFirstRun(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := backupConfig(testPath); err != nil {
		t.Fatalf("backupConfig failed on first run: %v", err)
	}
	if _, err := os.Stat(testPath + ".bak"); !os.IsNotExist(err) {
		t.Error("backup should not exist on first run")
	}
}

// TestSaveRoundTrip saves twice and checks the backup holds the first version.
func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	testPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg := NewConfig()
	cfg.Storage.DBPath = "/data/first.db"
	if err := Save(cfg, testPath, nil); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	cfg.Storage.DBPath = "/data/second.db"
	cfg.Triage.Defaults = map[string]string{"availability": "Friday"}
	if err := Save(cfg, testPath, nil); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := LoadFrom(testPath)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded.Storage.DBPath != "/data/second.db" {
		t.Errorf("unexpected db path %q", loaded.Storage.DBPath)
	}
	if loaded.Triage.Defaults["availability"] != "Friday" {
		t.Errorf("defaults not persisted: %+v", loaded.Triage.Defaults)
	}

	backup, err := LoadFrom(testPath + ".bak")
	if err != nil {
		t.Fatalf("failed to load backup: %v", err)
	}
	if backup.Storage.DBPath != "/data/first.db" {
		t.Errorf("backup should hold the first version, got %q", backup.Storage.DBPath)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg := NewConfig()
	cfg.Logging.Format = "xml"
	if err := Save(cfg, testPath, nil); err == nil {
		t.Fatal("expected Save to reject invalid config")
	}
	if _, err := os.Stat(testPath); !os.IsNotExist(err) {
		t.Error("invalid config should not be written")
	}
}
