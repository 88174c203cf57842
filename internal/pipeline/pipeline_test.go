package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/dataset"
	"github.com/hoopsml/shotpredict/internal/features"
	"github.com/hoopsml/shotpredict/internal/fsutil"
	"github.com/hoopsml/shotpredict/internal/registry"
)

func TestSignals(t *testing.T) {
	s := NewSignals(filepath.Join(t.TempDir(), "signals"))

	if s.Present(TrainingDone) {
		t.Fatal("signal present before raise")
	}
	if err := s.Raise(TrainingDone); err != nil {
		t.Fatalf("Raise() error = %v", err)
	}
	if err := s.Raise(TrainingDone); err != nil {
		t.Fatalf("second Raise() error = %v", err)
	}
	if !s.Present(TrainingDone) {
		t.Fatal("signal absent after raise")
	}

	consumed, err := s.Consume(TrainingDone)
	if err != nil || !consumed {
		t.Fatalf("Consume() = %v, %v, want true", consumed, err)
	}
	consumed, err = s.Consume(TrainingDone)
	if err != nil || consumed {
		t.Errorf("second Consume() = %v, %v, want false", consumed, err)
	}
}

func TestFileLocker(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLocker(dir, 0)
	ctx := context.Background()

	release, err := l.Acquire(ctx, LockRawDataset)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := l.Acquire(ctx, LockRawDataset); !errors.Is(err, ErrLocked) {
		t.Errorf("second Acquire() error = %v, want ErrLocked", err)
	}
	if _, err := l.Acquire(ctx, LockModelRegistry); err != nil {
		t.Errorf("other lock name should be independent: %v", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	release, err = l.Acquire(ctx, LockRawDataset)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release()
}

func TestFileLocker_LeftoverLockFileIsFree(t *testing.T) {
	dir := t.TempDir()
	// Left behind by a run that was killed while holding the lock.
	writeFile(t, filepath.Join(dir, LockModelRegistry+".lock"), "pid=999999\n")

	start := time.Now()
	release, err := NewFileLocker(dir, 0).Acquire(context.Background(), LockModelRegistry)
	if err != nil {
		t.Fatalf("Acquire() over leftover lock file error = %v", err)
	}
	defer release()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Acquire() took %v", elapsed)
	}
}

func TestFileLocker_WaitsForRelease(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	holder, err := NewFileLocker(dir, 0).Acquire(ctx, LockRawDataset)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(150 * time.Millisecond)
		holder()
	}()

	release, err := NewFileLocker(dir, 5*time.Second).Acquire(ctx, LockRawDataset)
	if err != nil {
		t.Fatalf("Acquire() with wait error = %v", err)
	}
	release()
}

func TestFileLocker_WaitTimesOut(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	holder, err := NewFileLocker(dir, 0).Acquire(ctx, LockRawDataset)
	if err != nil {
		t.Fatal(err)
	}
	defer holder()

	if _, err := NewFileLocker(dir, 200*time.Millisecond).Acquire(ctx, LockRawDataset); !errors.Is(err, ErrLocked) {
		t.Errorf("error = %v, want ErrLocked", err)
	}
}

func TestRedisLocker(t *testing.T) {
	var gotToken, releasedToken interface{}
	client := &MockRedisLockClient{
		SetNXFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
			if key != "shotpredict:lock:model-registry" {
				t.Errorf("key = %q", key)
			}
			gotToken = value
			return redis.NewBoolResult(true, nil)
		},
		EvalFunc: func(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
			releasedToken = args[0]
			return redis.NewCmdResult(int64(1), nil)
		},
	}

	release, err := NewRedisLocker(client, time.Minute).Acquire(context.Background(), LockModelRegistry)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := release(); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if gotToken == nil || gotToken != releasedToken {
		t.Errorf("released token %v, acquired with %v", releasedToken, gotToken)
	}
}

func TestRedisLocker_Held(t *testing.T) {
	client := &MockRedisLockClient{
		SetNXFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
			return redis.NewBoolResult(false, nil)
		},
	}
	if _, err := NewRedisLocker(client, time.Minute).Acquire(context.Background(), LockRawDataset); !errors.Is(err, ErrLocked) {
		t.Errorf("error = %v, want ErrLocked", err)
	}
}

func TestRedisNotifier(t *testing.T) {
	var channel string
	pub := &MockPublisher{
		PublishFunc: func(ctx context.Context, ch string, message interface{}) *redis.IntCmd {
			channel = ch
			if !strings.Contains(string(message.([]byte)), `"model":"model_lr-v1-20240101.json"`) {
				t.Errorf("payload = %s", message)
			}
			return redis.NewIntResult(1, nil)
		},
	}

	err := NewRedisNotifier(pub).ModelPromoted(context.Background(), ModelEvent{Model: "model_lr-v1-20240101.json", Version: 1})
	if err != nil {
		t.Fatalf("ModelPromoted() error = %v", err)
	}
	if channel != ModelChannel {
		t.Errorf("channel = %q, want %q", channel, ModelChannel)
	}
}

func TestIngest_PureAppend(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, Deps{Logger: zap.NewNop()})
	ctx := context.Background()

	writeFile(t, cfg.RawFile, rawShots(0, 10))

	writeFile(t, cfg.NewDataFile, rawShots(10, 4))
	res, err := r.Ingest(ctx)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Existing != 10 || res.New != 4 || res.Total != 14 {
		t.Errorf("first ingest = %+v", res)
	}

	writeFile(t, cfg.NewDataFile, rawShots(14, 6))
	if res, err = r.Ingest(ctx); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Total != 20 {
		t.Errorf("Total = %d, want 10+4+6", res.Total)
	}

	raw, err := dataset.Read(cfg.RawFile)
	if err != nil {
		t.Fatal(err)
	}
	ids, _ := raw.Column("Game Event ID")
	if ids[0] != "0" || ids[19] != "19" {
		t.Errorf("rows out of order: first %s, last %s", ids[0], ids[19])
	}
	if !r.Signals().Present(IngestionDone) {
		t.Error("ingestion_done not raised")
	}
}

func TestIngest_MissingBatchIsNoop(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, Deps{})
	writeFile(t, cfg.RawFile, rawShots(0, 5))

	res, err := r.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.New != 0 || res.Total != 5 {
		t.Errorf("result = %+v, want unchanged 5 rows", res)
	}
}

func TestIngest_LockHeld(t *testing.T) {
	cfg := testConfig(t)
	locker := NewFileLocker(cfg.LockDir, 0)
	release, err := locker.Acquire(context.Background(), LockRawDataset)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	r := NewRunner(cfg, Deps{Locker: locker})
	if _, err := r.Ingest(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("error = %v, want ErrLocked", err)
	}
}

func TestProcessFrame(t *testing.T) {
	raw, err := dataset.ReadCSV(strings.NewReader(rawShots(0, 40)))
	if err != nil {
		t.Fatal(err)
	}
	dup, _ := dataset.Append(raw, raw)

	got, err := ProcessFrame(dup)
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if got.Len() != 40 {
		t.Errorf("Len() = %d, want duplicates removed", got.Len())
	}

	names := got.Names()
	for _, gone := range []string{"Action Type", "Team Name", "Shot Type", "Season Type", "Game ID", "Player Name", "Team ID"} {
		if slices.Contains(names, gone) {
			t.Errorf("column %q should be dropped", gone)
		}
	}
	for _, want := range []string{
		"Action Type_Frequency", "Game ID_Frequency", "Player ID_Frequency",
		"ShotType_2PT Field Goal", "ShotZoneBasic_Restricted Area",
		"ShotZoneRange_Less Than 8 ft.", "SeasonType_Regular Season",
		"Period", "Shot Distance", "Shot Made Flag", "Game Date",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("missing column %q in %v", want, names)
		}
	}
}

func TestEngineer_MalformedDateWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, Deps{})
	writeFile(t, cfg.ProcessedFile, "Game Date,Shot Distance,Shot Made Flag\n20230101,1,1\n2023-01-02,3,0\n")

	if _, err := r.Engineer(context.Background()); !errors.Is(err, features.ErrDateFormat) {
		t.Fatalf("error = %v, want ErrDateFormat", err)
	}
	if fsutil.Exists(cfg.BundleFile) {
		t.Error("bundle written despite malformed date")
	}
	if r.Signals().Present(FeatureEngineeringDone) {
		t.Error("signal raised despite failure")
	}
}

// gateBundle trains on distance alone. The test partition has ten 1 ft
// shots labelled made and ten 20 ft shots of which `missed` are labelled
// missed, so a sane model scores (10+missed)/20.
func gateBundle(missed int) *features.Bundle {
	b := &features.Bundle{Columns: []string{"Shot Distance"}, Label: features.LabelColumn}
	for pass := 0; pass < 2; pass++ {
		for d := 0; d <= 30; d++ {
			b.XTrain = append(b.XTrain, []float64{float64(d)})
			if d <= 7 {
				b.YTrain = append(b.YTrain, 1)
			} else {
				b.YTrain = append(b.YTrain, 0)
			}
		}
	}
	for i := 0; i < 10; i++ {
		b.XTest = append(b.XTest, []float64{1})
		b.YTest = append(b.YTest, 1)
	}
	for i := 0; i < 10; i++ {
		b.XTest = append(b.XTest, []float64{20})
		if i < missed {
			b.YTest = append(b.YTest, 0)
		} else {
			b.YTest = append(b.YTest, 1)
		}
	}
	return b
}

func TestCheckTrigger(t *testing.T) {
	r := NewRunner(testConfig(t), Deps{})

	for _, stage := range []Stage{StageProcess, StageFeatures} {
		if err := r.CheckTrigger(stage); !errors.Is(err, ErrNotTriggered) {
			t.Errorf("CheckTrigger(%s) error = %v, want ErrNotTriggered", stage, err)
		}
	}
	for _, stage := range []Stage{StageIngest, StageTrain, StageInfer} {
		if err := r.CheckTrigger(stage); err != nil {
			t.Errorf("CheckTrigger(%s) error = %v, want nil", stage, err)
		}
	}

	if err := r.Signals().Raise(IngestionDone); err != nil {
		t.Fatal(err)
	}
	if err := r.CheckTrigger(StageProcess); err != nil {
		t.Errorf("CheckTrigger(process) after ingestion_done error = %v", err)
	}
	if err := r.CheckTrigger(StageFeatures); !errors.Is(err, ErrNotTriggered) {
		t.Errorf("CheckTrigger(features) error = %v, want ErrNotTriggered", err)
	}

	if err := r.Signals().Raise(ProcessingDone); err != nil {
		t.Fatal(err)
	}
	if err := r.CheckTrigger(StageFeatures); err != nil {
		t.Errorf("CheckTrigger(features) after processing_done error = %v", err)
	}
}

func TestTrain_PromotionGate(t *testing.T) {
	tests := []struct {
		name         string
		missed       int
		wantAccuracy float64
		wantPromoted bool
		wantBest     float64
	}{
		{"Worse model is discarded", 3, 0.65, false, 0.70},
		{"Better model is promoted", 5, 0.75, true, 0.75},
		{"Tie is discarded", 4, 0.70, false, 0.70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			notifier := &MockNotifier{}
			now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
			r := NewRunner(cfg, Deps{Notifier: notifier, Now: func() time.Time { return now }})

			if err := r.Registry().WriteBest(registry.Best{Accuracy: 0.70}); err != nil {
				t.Fatal(err)
			}
			if err := features.SaveBundle(cfg.BundleFile, gateBundle(tt.missed)); err != nil {
				t.Fatal(err)
			}
			if err := r.Signals().Raise(FeatureEngineeringDone); err != nil {
				t.Fatal(err)
			}

			res, err := r.Train(context.Background())
			if err != nil {
				t.Fatalf("Train() error = %v", err)
			}
			if res.Accuracy != tt.wantAccuracy {
				t.Fatalf("Accuracy = %v, want %v", res.Accuracy, tt.wantAccuracy)
			}
			if res.Promoted != tt.wantPromoted {
				t.Errorf("Promoted = %v, want %v", res.Promoted, tt.wantPromoted)
			}
			if res.Model != "model_lr-v1-20240105.json" {
				t.Errorf("Model = %q", res.Model)
			}

			best, _ := r.Registry().ReadBest()
			if best.Accuracy != tt.wantBest {
				t.Errorf("best accuracy = %v, want %v", best.Accuracy, tt.wantBest)
			}

			wantDir := cfg.DiscardedDir
			if tt.wantPromoted {
				wantDir = cfg.ModelDir
			}
			if !fsutil.Exists(filepath.Join(wantDir, res.Model)) {
				t.Errorf("artifact not found in %s", wantDir)
			}

			sig := r.Signals()
			if sig.Present(NewModelAvailable) != tt.wantPromoted {
				t.Errorf("new_model_available present = %v", sig.Present(NewModelAvailable))
			}
			if !sig.Present(TrainingDone) {
				t.Error("training_done not raised")
			}
			if sig.Present(FeatureEngineeringDone) {
				t.Error("feature_engineering_done not consumed")
			}
			if got := len(notifier.Events); (got == 1) != tt.wantPromoted {
				t.Errorf("notifications = %d", got)
			}
		})
	}
}

func TestTrain_FinalizesWhenModelSignalFails(t *testing.T) {
	cfg := testConfig(t)
	notifier := &MockNotifier{}
	r := NewRunner(cfg, Deps{Notifier: notifier})

	if err := r.Registry().WriteBest(registry.Best{Accuracy: 0.70}); err != nil {
		t.Fatal(err)
	}
	if err := features.SaveBundle(cfg.BundleFile, gateBundle(5)); err != nil {
		t.Fatal(err)
	}
	if err := r.Signals().Raise(FeatureEngineeringDone); err != nil {
		t.Fatal(err)
	}
	// A directory in the marker's place makes raising it fail.
	if err := os.MkdirAll(filepath.Join(cfg.SignalDir, string(NewModelAvailable)), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := r.Train(context.Background())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if !res.Promoted {
		t.Fatal("Promoted = false, want true")
	}
	if !r.Signals().Present(TrainingDone) {
		t.Error("training_done not raised")
	}
	if r.Signals().Present(FeatureEngineeringDone) {
		t.Error("feature_engineering_done not consumed")
	}
	best, err := r.Registry().ReadBest()
	if err != nil || best.Model != res.Model {
		t.Errorf("best = %+v, %v, want %s", best, err, res.Model)
	}
}

func TestTrain_MissingBundle(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, Deps{})

	if _, err := r.Train(context.Background()); !errors.Is(err, ErrBundleMissing) {
		t.Fatalf("error = %v, want ErrBundleMissing", err)
	}
	if r.Signals().Present(TrainingDone) {
		t.Error("training_done raised without a model")
	}
	entries, _ := os.ReadDir(cfg.ModelDir)
	if len(entries) != 0 {
		t.Errorf("model dir has %d entries, want none", len(entries))
	}
}

func TestInfer_NoSignalIsNoop(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, Deps{})

	res, err := r.Infer(context.Background())
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if !res.Skipped {
		t.Error("Skipped = false, want true")
	}
	if fsutil.Exists(cfg.PredictionsFile) {
		t.Error("predictions written without a signal")
	}
}

func TestInfer_FailureConsumesSignal(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, Deps{})
	if err := r.Signals().Raise(NewModelAvailable); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Infer(context.Background()); !errors.Is(err, registry.ErrNoModel) {
		t.Fatalf("error = %v, want ErrNoModel", err)
	}
	if r.Signals().Present(NewModelAvailable) {
		t.Error("new_model_available should be consumed after a failed run")
	}
	if r.Signals().Present(InferenceDone) {
		t.Error("inference_done raised for a failed run")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, Deps{Logger: zap.NewNop()})
	writeFile(t, cfg.RawFile, rawShots(0, 100))
	writeFile(t, cfg.NewDataFile, rawShots(100, 55))

	if err := r.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}

	best, err := r.Registry().ReadBest()
	if err != nil {
		t.Fatal(err)
	}
	if best.Accuracy < 0.5 || best.Model == "" || best.Params == nil {
		t.Errorf("best = %+v", best)
	}

	preds, err := dataset.Read(cfg.PredictionsFile)
	if err != nil {
		t.Fatalf("read predictions: %v", err)
	}
	if preds.Len() != 31 {
		t.Errorf("predictions = %d rows, want ceil(155*0.2)", preds.Len())
	}
	if !preds.Has(PredictionColumn) {
		t.Errorf("predictions lack %q column", PredictionColumn)
	}

	sig := r.Signals()
	if !sig.Present(InferenceDone) || !sig.Present(TrainingDone) {
		t.Error("final signals not raised")
	}
	for _, s := range []Signal{IngestionDone, ProcessingDone, FeatureEngineeringDone, NewModelAvailable} {
		if sig.Present(s) {
			t.Errorf("%s left unconsumed", s)
		}
	}

	// A second pass over the same data cannot beat itself, so the new
	// model is discarded and inference is skipped.
	writeFile(t, cfg.NewDataFile, "")
	if err := r.RunAll(context.Background()); err != nil {
		t.Fatalf("second RunAll() error = %v", err)
	}
	discarded, _ := os.ReadDir(cfg.DiscardedDir)
	if len(discarded) != 1 {
		t.Errorf("discarded models = %d, want 1", len(discarded))
	}
}

func TestRun_UnknownStage(t *testing.T) {
	r := NewRunner(testConfig(t), Deps{})
	if err := r.Run(context.Background(), Stage("deploy")); err == nil {
		t.Error("expected error for unknown stage")
	}
	if _, err := ParseStage("train"); err != nil {
		t.Errorf("ParseStage(train) error = %v", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.StageTimeout = time.Nanosecond
	r := NewRunner(cfg, Deps{})
	writeFile(t, cfg.RawFile, rawShots(0, 20))

	err := r.Run(context.Background(), StageProcess)
	if !errors.Is(err, ErrStageTimeout) {
		t.Errorf("error = %v, want ErrStageTimeout", err)
	}
}

func TestSample(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, Deps{})
	writeFile(t, cfg.HistoricalFile, rawShots(0, 50))

	n, err := r.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if n != 5 {
		t.Errorf("sampled %d rows, want 5", n)
	}
	got, err := dataset.Read(cfg.NewDataFile)
	if err != nil || got.Len() != 5 {
		t.Errorf("new data = %d rows, %v", got.Len(), err)
	}
}
