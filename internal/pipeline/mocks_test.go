package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hoopsml/shotpredict/internal/config"
)

type MockRedisLockClient struct {
	SetNXFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	EvalFunc  func(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

func (m *MockRedisLockClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if m.SetNXFunc != nil {
		return m.SetNXFunc(ctx, key, value, expiration)
	}
	return redis.NewBoolResult(true, nil)
}

func (m *MockRedisLockClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if m.EvalFunc != nil {
		return m.EvalFunc(ctx, script, keys, args...)
	}
	return redis.NewCmdResult(int64(1), nil)
}

type MockPublisher struct {
	PublishFunc func(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, channel, message)
	}
	return redis.NewIntResult(1, nil)
}

type MockNotifier struct {
	Events []ModelEvent
	Err    error
}

func (m *MockNotifier) ModelPromoted(ctx context.Context, ev ModelEvent) error {
	m.Events = append(m.Events, ev)
	return m.Err
}

func testConfig(t *testing.T) config.Pipeline {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "data")
	models := filepath.Join(root, "trained_models")

	return config.Pipeline{
		Paths: config.Paths{
			DataDir:         data,
			NewDataFile:     filepath.Join(data, "new_data", "new_data.csv"),
			HistoricalFile:  filepath.Join(data, "raw", "shots-original.csv"),
			RawFile:         filepath.Join(data, "raw", "shots.csv"),
			ProcessedFile:   filepath.Join(data, "processed", "shots-processed.csv"),
			BundleFile:      filepath.Join(data, "processed", "shots-train-test.json"),
			PredictionsFile: filepath.Join(data, "predictions", "predictions.csv"),
			ModelDir:        models,
			StagingDir:      filepath.Join(models, ".staging"),
			DiscardedDir:    filepath.Join(models, "discarded"),
			BestMetricsFile: filepath.Join(models, "best_metrics.json"),
			SignalDir:       filepath.Join(data, "signals"),
			LockDir:         filepath.Join(data, "locks"),
		},
		ModelBaseName: "model_lr",
		ModelExt:      "json",
		Seed:          66,
		TestFraction:  0.2,
		Solver:        "lbfgs",
		C:             1,
		MaxIter:       1000,
		LearningRate:  0.1,
		StageTimeout:  time.Minute,
		SampleRatio:   0.1,
	}
}

var rawHeader = []string{
	"Game ID", "Game Event ID", "Player ID", "Player Name", "Team ID", "Team Name",
	"Period", "Minutes Remaining", "Seconds Remaining", "Action Type", "Shot Type",
	"Shot Zone Basic", "Shot Zone Area", "Shot Zone Range", "Shot Distance",
	"X Location", "Y Location", "Shot Made Flag", "Game Date", "Home Team",
	"Away Team", "Season Type",
}

// rawShots renders n distinct shots starting at event id `from`. Shots of
// 7 ft or less are made.
func rawShots(from, n int) string {
	teams := []string{"Boston Celtics", "Miami Heat", "Denver Nuggets"}
	var b strings.Builder
	b.WriteString(strings.Join(rawHeader, ",") + "\n")
	for i := from; i < from+n; i++ {
		d := i % 31
		made, zone, rng, shotType, action := 0, "Mid-Range", "8-16 ft.", "2PT Field Goal", "Jump Shot"
		if d <= 7 {
			made, zone, rng, action = 1, "Restricted Area", "Less Than 8 ft.", "Layup Shot"
		}
		if d >= 23 {
			zone, rng, shotType = "Above the Break 3", "24+ ft.", "3PT Field Goal"
		}
		area := "Center(C)"
		if i%2 == 1 {
			area = "Left Side(L)"
		}
		season := "Regular Season"
		if i%5 == 0 {
			season = "Playoffs"
		}
		fmt.Fprintf(&b, "%d,%d,%d,Player %d,%d,%s,%d,%d,%d,%s,%s,%s,%s,%s,%d,%d,%d,%d,202301%02d,%s,%s,%s\n",
			20000+i%7, i, 200+i%5, i%5, 1610612700+i%3, teams[i%3],
			1+i%4, i%12, i%60, action, shotType,
			zone, area, rng, d,
			(i%50)-25, d*10, made, 1+i%28, teams[i%3],
			teams[(i+1)%3], season,
		)
	}
	return b.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
