package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoopsml/shotpredict/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	return New(Config{
		ModelDir:        root,
		StagingDir:      filepath.Join(root, ".staging"),
		DiscardedDir:    filepath.Join(root, "discarded"),
		BestMetricsFile: filepath.Join(root, "best_metrics.json"),
		Base:            "model",
		Ext:             "json",
	})
}

func artifact(acc float64) *model.Artifact {
	return &model.Artifact{
		Params:   model.DefaultParams(),
		Columns:  []string{"Shot Distance"},
		Weights:  []float64{-0.6},
		Accuracy: acc,
	}
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestVersionedName(t *testing.T) {
	name := VersionedName("model_lr", 3, "20240105", "json")
	if name != "model_lr-v3-20240105.json" {
		t.Errorf("VersionedName() = %q", name)
	}

	v, date, ok := ParseName("model_lr", "json", name)
	if !ok || v != 3 || date != "20240105" {
		t.Errorf("ParseName() = %d, %q, %v", v, date, ok)
	}
	for _, bad := range []string{"model_lr-v3-2024015.json", "model_lr-v-20240105.json", "other-v1-20240105.json", "model_lr-v1-20240105.joblib"} {
		if _, _, ok := ParseName("model_lr", "json", bad); ok {
			t.Errorf("ParseName(%q) matched", bad)
		}
	}
}

func TestNextVersion_ProbesAllAreas(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()

	if v := r.NextVersion("20240101"); v != 1 {
		t.Fatalf("NextVersion() on empty registry = %d, want 1", v)
	}

	touch(t, filepath.Join(r.cfg.ModelDir, "model-v1-20240101.json"), now)
	touch(t, filepath.Join(r.cfg.DiscardedDir, "model-v2-20240101.json"), now)
	touch(t, filepath.Join(r.cfg.StagingDir, "model-v3-20240101.json"), now)

	if v := r.NextVersion("20240101"); v != 4 {
		t.Errorf("NextVersion() = %d, want 4", v)
	}
	if v := r.NextVersion("20240102"); v != 1 {
		t.Errorf("NextVersion() on a new date = %d, want 1", v)
	}
}

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	touch(t, filepath.Join(dir, "model-v1-20240101.joblib"), base)
	touch(t, filepath.Join(dir, "model-v2-20240105.joblib"), base.Add(time.Minute))
	touch(t, filepath.Join(dir, "model-v9-20231231.joblib"), base.Add(-time.Minute))
	touch(t, filepath.Join(dir, "notes.txt"), base.Add(time.Hour))

	got, err := FindLatest(dir, "model", "joblib")
	if err != nil {
		t.Fatalf("FindLatest() error = %v", err)
	}
	if filepath.Base(got) != "model-v2-20240105.joblib" {
		t.Errorf("FindLatest() = %s, want model-v2-20240105.joblib", filepath.Base(got))
	}
}

func TestFindLatest_CreationOrderBeatsName(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	touch(t, filepath.Join(dir, "model-v2-20240105.joblib"), base)
	touch(t, filepath.Join(dir, "model-v1-20240101.joblib"), base.Add(time.Minute))

	got, err := FindLatest(dir, "model", "joblib")
	if err != nil {
		t.Fatalf("FindLatest() error = %v", err)
	}
	if filepath.Base(got) != "model-v1-20240101.joblib" {
		t.Errorf("FindLatest() = %s, want the most recently created file", filepath.Base(got))
	}
}

func TestFindLatest_TieBreak(t *testing.T) {
	dir := t.TempDir()
	same := time.Now().Add(-time.Hour).Truncate(time.Second)

	touch(t, filepath.Join(dir, "model-v1-20240105.json"), same)
	touch(t, filepath.Join(dir, "model-v3-20240101.json"), same)
	touch(t, filepath.Join(dir, "model-v2-20240105.json"), same)

	got, err := FindLatest(dir, "model", "json")
	if err != nil {
		t.Fatalf("FindLatest() error = %v", err)
	}
	if filepath.Base(got) != "model-v2-20240105.json" {
		t.Errorf("FindLatest() = %s, want model-v2-20240105.json", filepath.Base(got))
	}
}

func TestFindLatest_NoModel(t *testing.T) {
	dir := t.TempDir()
	if _, err := FindLatest(dir, "model", "json"); !errors.Is(err, ErrNoModel) {
		t.Errorf("empty dir: error = %v, want ErrNoModel", err)
	}
	if _, err := FindLatest(filepath.Join(dir, "missing"), "model", "json"); !errors.Is(err, ErrNoModel) {
		t.Errorf("missing dir: error = %v, want ErrNoModel", err)
	}
}

func TestReadBest_DefaultsToZero(t *testing.T) {
	r := newTestRegistry(t)

	best, err := r.ReadBest()
	if err != nil {
		t.Fatalf("ReadBest() error = %v", err)
	}
	if best.Accuracy != 0 || best.Model != "" {
		t.Errorf("ReadBest() = %+v, want zero", best)
	}
	if !best.ImprovedBy(0.01) || best.ImprovedBy(0) {
		t.Error("zero record should be beaten by any positive accuracy and not by a tie")
	}
}

func TestPromote(t *testing.T) {
	r := newTestRegistry(t)
	a := artifact(0.75)
	r.Assign(a, time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC))

	path, err := r.Promote(a)
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if filepath.Base(path) != "model-v1-20240105.json" {
		t.Errorf("promoted path = %s", path)
	}

	best, err := r.ReadBest()
	if err != nil {
		t.Fatal(err)
	}
	if best.Accuracy != 0.75 || best.Model != a.Name || best.Params == nil {
		t.Errorf("best = %+v", best)
	}

	loaded, err := model.Load(path)
	if err != nil {
		t.Fatalf("model.Load() error = %v", err)
	}
	if loaded.Version != 1 || loaded.Accuracy != 0.75 {
		t.Errorf("loaded = %+v", loaded)
	}

	staged, _ := os.ReadDir(r.cfg.StagingDir)
	if len(staged) != 0 {
		t.Errorf("staging holds %d files after promotion", len(staged))
	}
}

func TestDiscard(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.WriteBest(Best{Accuracy: 0.7}); err != nil {
		t.Fatal(err)
	}

	a := artifact(0.65)
	r.Assign(a, time.Now())
	path, err := r.Discard(a)
	if err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if filepath.Dir(path) != r.cfg.DiscardedDir {
		t.Errorf("discarded to %s", path)
	}

	best, _ := r.ReadBest()
	if best.Accuracy != 0.7 {
		t.Errorf("best accuracy = %v, want unchanged 0.7", best.Accuracy)
	}
	if _, err := r.Latest(); !errors.Is(err, ErrNoModel) {
		t.Errorf("Latest() error = %v, want ErrNoModel", err)
	}

	b := artifact(0.6)
	r.Assign(b, time.Now())
	if b.Version != a.Version+1 {
		t.Errorf("next version after discard = %d, want %d", b.Version, a.Version+1)
	}
}

func TestRecover(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()

	committed := "model-v2-20240105.json"
	abandoned := "model-v3-20240105.json"
	touch(t, filepath.Join(r.cfg.StagingDir, committed), now)
	touch(t, filepath.Join(r.cfg.StagingDir, abandoned), now)
	touch(t, filepath.Join(r.cfg.StagingDir, ".model-v4-20240105.json.tmp-1"), now)
	if err := r.WriteBest(Best{Accuracy: 0.8, Model: committed, Version: 2}); err != nil {
		t.Fatal(err)
	}

	report, err := r.Recover()
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if len(report.Published) != 1 || report.Published[0] != committed {
		t.Errorf("Published = %v", report.Published)
	}
	if len(report.Discarded) != 1 || report.Discarded[0] != abandoned {
		t.Errorf("Discarded = %v", report.Discarded)
	}

	if _, err := os.Stat(filepath.Join(r.cfg.ModelDir, committed)); err != nil {
		t.Errorf("committed model not published: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.cfg.DiscardedDir, abandoned)); err != nil {
		t.Errorf("abandoned model not discarded: %v", err)
	}
	if left, _ := os.ReadDir(r.cfg.StagingDir); len(left) != 0 {
		t.Errorf("staging still holds %d entries", len(left))
	}

	again, err := r.Recover()
	if err != nil || !again.Empty() {
		t.Errorf("second Recover() = %+v, %v", again, err)
	}
}
