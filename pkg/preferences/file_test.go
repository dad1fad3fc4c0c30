package preferences

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gaswatch/gaswatch-go/pkg/gas"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "nonexistent.json"))

		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "sub", "prefs.json"))

		doc := New()
		doc.SetDisplayName("1001", "Boiler room")
		doc.SetMasterEnabled(false)
		doc.Thresholds["ASG-CO_COM3"] = map[gas.Type]gas.Threshold{
			gas.CO: {NormalMin: 0, NormalMax: 20, WarningMin: 20, WarningMax: 100, DangerMin: 100, Unit: "ppm"},
		}

		if err := store.Save(ctx, doc); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != DocumentVersion {
			t.Errorf("Version = %d, want %d", got.Version, DocumentVersion)
		}
		if got.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
		if name, _ := got.DisplayName("1001"); name != "Boiler room" {
			t.Errorf("DisplayName = %q, want %q", name, "Boiler room")
		}
		if got.MasterEnabled() {
			t.Error("MasterEnabled() = true, want false")
		}
		if th := got.Thresholds["ASG-CO_COM3"][gas.CO]; th.DangerMin != 100 || th.Unit != "ppm" {
			t.Errorf("threshold = %+v", th)
		}
	})

	t.Run("SaveKeepsExplicitTimestamp", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "prefs.json"))
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		if err := store.Save(ctx, &Document{SavedAt: at}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, _ := store.Load(ctx)
		if !got.SavedAt.Equal(at) {
			t.Errorf("SavedAt = %v, want %v", got.SavedAt, at)
		}
	})

	t.Run("SaveLeavesNoTempFiles", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileStore(filepath.Join(dir, "prefs.json"))

		for i := 0; i < 3; i++ {
			if err := store.Save(ctx, New()); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("dir has %d entries, want 1", len(entries))
		}
	})

	t.Run("LoadCorrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prefs.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := NewFileStore(path).Load(ctx); err == nil {
			t.Error("Load() expected error for corrupt file")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "prefs.json"))
		if err := store.Save(ctx, New()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear() on missing file error = %v", err)
		}

		got, _ := store.Load(ctx)
		if got != nil {
			t.Error("Load() after Clear() should return nil")
		}
	})
}
