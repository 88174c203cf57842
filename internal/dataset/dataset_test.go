package dataset

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustFrame(t *testing.T, csv string) Frame {
	t.Helper()
	f, err := ReadCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	return f
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestReadCSV_HeaderOnlyIsEmpty(t *testing.T) {
	f := mustFrame(t, "a,b\n")
	if !f.Empty() || f.Len() != 0 {
		t.Errorf("Empty() = %v, Len() = %d", f.Empty(), f.Len())
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw", "shots.csv")
	in := mustFrame(t, "Period,Team Name\n1,Boston Celtics\n4,Miami Heat\n")

	if err := Write(path, in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", out.Len())
	}
	teams, _ := out.Column("Team Name")
	if teams[1] != "Miami Heat" {
		t.Errorf("Team Name[1] = %q", teams[1])
	}
}

func TestWrite_EmptyFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := Write(path, Frame{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
	f, err := Read(path)
	if err != nil || !f.Empty() {
		t.Errorf("Read(empty) = %v, %v", f.Len(), err)
	}
}

func TestAppend(t *testing.T) {
	a := mustFrame(t, "x,y\n1,2\n3,4\n")
	b := mustFrame(t, "x,y\n5,6\n")

	tests := []struct {
		name     string
		existing Frame
		batch    Frame
		want     int
	}{
		{"Both", a, b, 3},
		{"Empty existing", Frame{}, b, 1},
		{"Empty batch", a, Frame{}, 2},
		{"Both empty", Frame{}, Frame{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Append(tt.existing, tt.batch)
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if got.Len() != tt.want {
				t.Errorf("Len() = %d, want %d", got.Len(), tt.want)
			}
		})
	}
}

func TestAppend_MismatchedColumns(t *testing.T) {
	a := mustFrame(t, "x,y\n1,2\n")
	b := mustFrame(t, "x,z\n3,4\n")

	got, err := Append(a, b)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if want := []string{"x", "y", "z"}; strings.Join(got.Names(), ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got.Names(), want)
	}
	cleaned, _ := Clean(got)
	if !cleaned.Empty() {
		t.Errorf("rows with filled-in gaps should be cleaned away, got %d", cleaned.Len())
	}
}

func TestAppend_GapsAreMissing(t *testing.T) {
	a := mustFrame(t, "x,y\n1,2\n5,6\n")
	b := mustFrame(t, "x,z\n3,4\n")

	got, err := Append(a, b)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	mask := got.missingMask()
	want := []bool{true, true, true}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("missingMask()[%d] = %v, want %v", i, mask[i], want[i])
		}
	}

	c := mustFrame(t, "x,y\n7,8\n")
	full, err := Append(a, c)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	cleaned, err := Clean(full)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if cleaned.Len() != 3 {
		t.Errorf("Clean() kept %d rows, want 3", cleaned.Len())
	}
}

func TestClean(t *testing.T) {
	f := mustFrame(t, "a,b\n1,x\n1,x\n2,\n3,NA\n4,y\n")

	got, err := Clean(f)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	a, _ := got.Column("a")
	if a[0] != "1" || a[1] != "4" {
		t.Errorf("a = %v, want [1 4]", a)
	}

	again, err := Clean(got)
	if err != nil {
		t.Fatalf("second Clean() error = %v", err)
	}
	if again.Len() != got.Len() {
		t.Errorf("Clean is not idempotent: %d then %d rows", got.Len(), again.Len())
	}
}

func TestFrequencyEncode(t *testing.T) {
	f := mustFrame(t, "Team Name\nA\nB\nA\nC\nA\nB\n")

	got, err := FrequencyEncode(f, "Team Name")
	if err != nil {
		t.Fatalf("FrequencyEncode() error = %v", err)
	}
	freq, err := got.Floats("Team Name_Frequency")
	if err != nil {
		t.Fatalf("Floats() error = %v", err)
	}

	want := map[string]float64{"A": 3.0 / 6, "B": 2.0 / 6, "C": 1.0 / 6}
	teams, _ := got.Column("Team Name")
	for i, team := range teams {
		if math.Abs(freq[i]-want[team]) > 1e-12 {
			t.Errorf("row %d (%s) frequency = %v, want %v", i, team, freq[i], want[team])
		}
	}
}

func TestFrequencyEncode_UnknownColumn(t *testing.T) {
	f := mustFrame(t, "a\n1\n")
	if _, err := FrequencyEncode(f, "b"); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestOneHotEncode(t *testing.T) {
	f := mustFrame(t, "Shot Type\n2PT Field Goal\n3PT Field Goal\n2PT Field Goal\n")

	got, err := OneHotEncode(f, "Shot Type", "ShotType")
	if err != nil {
		t.Fatalf("OneHotEncode() error = %v", err)
	}

	two, err := got.Floats("ShotType_2PT Field Goal")
	if err != nil {
		t.Fatal(err)
	}
	three, err := got.Floats("ShotType_3PT Field Goal")
	if err != nil {
		t.Fatal(err)
	}
	for i := range two {
		if two[i]+three[i] != 1 {
			t.Errorf("row %d indicators sum to %v, want 1", i, two[i]+three[i])
		}
	}
	if two[1] != 0 || three[1] != 1 {
		t.Errorf("row 1 = (%v, %v), want (0, 1)", two[1], three[1])
	}
}

func TestDropColumns(t *testing.T) {
	f := mustFrame(t, "a,b,c\n1,2,3\n")

	got, err := f.DropColumns("b", "missing")
	if err != nil {
		t.Fatalf("DropColumns() error = %v", err)
	}
	if strings.Join(got.Names(), ",") != "a,c" {
		t.Errorf("Names() = %v", got.Names())
	}
}

func TestSample(t *testing.T) {
	var b strings.Builder
	b.WriteString("i\n")
	for i := 0; i < 100; i++ {
		b.WriteString(strings.Repeat("1", i+1) + "\n")
	}
	f := mustFrame(t, b.String())

	got, err := Sample(f, 0.1, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got.Len() != 10 {
		t.Errorf("Len() = %d, want 10", got.Len())
	}

	if _, err := Sample(f, 0, rand.New(rand.NewPCG(1, 2))); err == nil {
		t.Error("expected error for zero ratio")
	}
}
