// Package registry stores trained model artifacts under versioned names and
// decides which one is served.
//
// A promotion is committed by the best-metrics manifest: the artifact is
// first written to a staging area, then the manifest naming it is replaced
// atomically, then the artifact is renamed into the model directory. Recover
// completes or rolls back whatever a crash left in staging.
package registry

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hoopsml/shotpredict/internal/fsutil"
	"github.com/hoopsml/shotpredict/internal/model"
)

const dateStamp = "20060102"

// ErrNoModel is returned when no artifact matches the versioned name pattern.
var ErrNoModel = errors.New("no model found")

// Config locates the registry on disk.
type Config struct {
	ModelDir        string
	StagingDir      string
	DiscardedDir    string
	BestMetricsFile string
	Base            string
	Ext             string
}

type Registry struct {
	cfg Config
}

func New(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

func (r *Registry) Config() Config { return r.cfg }

// VersionedName formats base-v{N}-{YYYYMMDD}.{ext}.
func VersionedName(base string, version int, date, ext string) string {
	return fmt.Sprintf("%s-v%d-%s.%s", base, version, date, ext)
}

func namePattern(base, ext string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `-v([0-9]+)-([0-9]{8})\.` + regexp.QuoteMeta(ext) + `$`)
}

// ParseName extracts the version and date stamp from a versioned name.
func ParseName(base, ext, name string) (version int, date string, ok bool) {
	return parse(namePattern(base, ext), name)
}

func parse(re *regexp.Regexp, name string) (int, string, bool) {
	m := re.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return v, m[2], true
}

// NextVersion returns the lowest version not yet used for date in any of the
// promoted, staging or discarded areas.
func (r *Registry) NextVersion(date string) int {
	for v := 1; ; v++ {
		name := VersionedName(r.cfg.Base, v, date, r.cfg.Ext)
		if !r.taken(name) {
			return v
		}
	}
}

func (r *Registry) taken(name string) bool {
	for _, dir := range []string{r.cfg.ModelDir, r.cfg.StagingDir, r.cfg.DiscardedDir} {
		if fsutil.Exists(filepath.Join(dir, name)) {
			return true
		}
	}
	return false
}

// Assign gives the artifact its versioned name for the day of t.
func (r *Registry) Assign(a *model.Artifact, t time.Time) {
	a.Date = t.Format(dateStamp)
	a.Version = r.NextVersion(a.Date)
	a.Name = VersionedName(r.cfg.Base, a.Version, a.Date, r.cfg.Ext)
}

// Latest returns the path of the newest promoted artifact.
func (r *Registry) Latest() (string, error) {
	return FindLatest(r.cfg.ModelDir, r.cfg.Base, r.cfg.Ext)
}

// FindLatest returns the path of the most recently modified file in dir whose
// name matches base-v{N}-{YYYYMMDD}.{ext}. Equal times fall back to the later
// date stamp, then the higher version.
func FindLatest(dir, base, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrNoModel, dir)
		}
		return "", fmt.Errorf("list %s: %w", dir, err)
	}

	re := namePattern(base, ext)
	var (
		best     string
		bestTime time.Time
		bestDate string
		bestVer  int
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, date, ok := parse(re, e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mt := info.ModTime()

		newer := best == "" ||
			mt.After(bestTime) ||
			(mt.Equal(bestTime) && (date > bestDate || (date == bestDate && v > bestVer)))
		if newer {
			best, bestTime, bestDate, bestVer = e.Name(), mt, date, v
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w matching %s-v*-*.%s in %s", ErrNoModel, base, ext, dir)
	}
	return filepath.Join(dir, best), nil
}

// Promote makes the artifact the served model and records its accuracy as
// the new best. The artifact must already carry its versioned name.
func (r *Registry) Promote(a *model.Artifact) (string, error) {
	if a.Name == "" {
		return "", errors.New("artifact has no versioned name")
	}
	staged := filepath.Join(r.cfg.StagingDir, a.Name)
	if err := fsutil.WriteAtomic(staged, a.Encode); err != nil {
		return "", fmt.Errorf("stage %s: %w", a.Name, err)
	}

	params := a.Params
	best := Best{
		Accuracy:   a.Accuracy,
		Model:      a.Name,
		Version:    a.Version,
		Params:     &params,
		PromotedAt: time.Now().UTC(),
	}
	if err := r.WriteBest(best); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("record best metrics for %s: %w", a.Name, err)
	}

	// The manifest is committed; from here Recover can finish the move.
	dst := filepath.Join(r.cfg.ModelDir, a.Name)
	if err := moveFile(staged, dst); err != nil {
		return "", fmt.Errorf("publish %s: %w", a.Name, err)
	}
	return dst, nil
}

// Discard files a losing artifact in the discarded area.
func (r *Registry) Discard(a *model.Artifact) (string, error) {
	if a.Name == "" {
		return "", errors.New("artifact has no versioned name")
	}
	dst := filepath.Join(r.cfg.DiscardedDir, a.Name)
	if err := fsutil.WriteAtomic(dst, a.Encode); err != nil {
		return "", fmt.Errorf("discard %s: %w", a.Name, err)
	}
	return dst, nil
}

// RecoveryReport lists what Recover did with staged files.
type RecoveryReport struct {
	Published []string
	Discarded []string
}

func (rr RecoveryReport) Empty() bool {
	return len(rr.Published) == 0 && len(rr.Discarded) == 0
}

// Recover publishes a staged artifact the manifest already names and moves
// every other staged artifact to the discarded area.
func (r *Registry) Recover() (RecoveryReport, error) {
	var report RecoveryReport

	entries, err := os.ReadDir(r.cfg.StagingDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, nil
		}
		return report, fmt.Errorf("list staging: %w", err)
	}
	if len(entries) == 0 {
		return report, nil
	}

	best, err := r.ReadBest()
	if err != nil {
		return report, err
	}

	for _, e := range entries {
		name := e.Name()
		src := filepath.Join(r.cfg.StagingDir, name)
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(name, ".") {
			_ = os.Remove(src)
			continue
		}

		if name == best.Model {
			dst := filepath.Join(r.cfg.ModelDir, name)
			if fsutil.Exists(dst) {
				_ = os.Remove(src)
				continue
			}
			if err := moveFile(src, dst); err != nil {
				return report, fmt.Errorf("publish staged %s: %w", name, err)
			}
			report.Published = append(report.Published, name)
			continue
		}

		if err := moveFile(src, filepath.Join(r.cfg.DiscardedDir, name)); err != nil {
			return report, fmt.Errorf("discard staged %s: %w", name, err)
		}
		report.Discarded = append(report.Discarded, name)
	}
	return report, nil
}

func moveFile(src, dst string) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return err
	}
	return fsutil.SyncDir(dir)
}

// Best is the best-metrics manifest. A zero Best means nothing has been
// promoted yet.
type Best struct {
	Accuracy   float64       `json:"accuracy"`
	Model      string        `json:"model,omitempty"`
	Version    int           `json:"version,omitempty"`
	Params     *model.Params `json:"params,omitempty"`
	PromotedAt time.Time     `json:"promoted_at"`
}

// ImprovedBy reports whether accuracy strictly beats the record. Ties lose.
func (b Best) ImprovedBy(accuracy float64) bool {
	return accuracy > b.Accuracy
}

// ReadBest returns the current manifest, or a zero Best if there is none.
func (r *Registry) ReadBest() (Best, error) {
	data, err := os.ReadFile(r.cfg.BestMetricsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Best{}, nil
		}
		return Best{}, fmt.Errorf("read best metrics: %w", err)
	}
	return decodeBest(data)
}

// WriteBest replaces the manifest atomically.
func (r *Registry) WriteBest(b Best) error {
	return fsutil.WriteAtomic(r.cfg.BestMetricsFile, func(w io.Writer) error {
		return encodeBest(w, b)
	})
}
