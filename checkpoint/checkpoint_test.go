package checkpoint

import (
	"math"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func openDB(tst *testing.T) *bolt.DB {
	db, err := bolt.Open(filepath.Join(tst.TempDir(), "ckp.db"), 0644, nil)
	if err != nil {
		tst.Fatal(err)
	}
	tst.Cleanup(func() { db.Close() })
	return db
}

func TestSaveLoad(tst *testing.T) {
	db := openDB(tst)
	io := NewIO(db, []byte("run1"), 0)

	state := &State{
		Iteration:     2,
		Rate:          0.01,
		Intercept:     -19.9,
		LnL:           -123.4,
		BranchLengths: []float64{0, 0.1, 0.2},
		Dates:         []float64{1990, 2000, 2010},
		Final:         true,
	}
	if err := io.Save(state); err != nil {
		tst.Fatal(err)
	}

	got, err := io.Load()
	if err != nil {
		tst.Fatal(err)
	}
	if got == nil {
		tst.Fatal("no state loaded")
	}
	if got.Iteration != 2 || !got.Final {
		tst.Errorf("loaded iteration=%d final=%v", got.Iteration, got.Final)
	}
	if math.Abs(got.Rate-0.01) > 1e-12 || len(got.Dates) != 3 {
		tst.Errorf("loaded state %+v", got)
	}
}

func TestLoadMissing(tst *testing.T) {
	db := openDB(tst)
	io := NewIO(db, []byte("absent"), 0)
	got, err := io.Load()
	if err != nil {
		tst.Fatal(err)
	}
	if got != nil {
		tst.Errorf("loaded %+v for a missing key, expected nil", got)
	}
}

func TestSaveRateLimit(tst *testing.T) {
	io := NewIO(nil, []byte("x"), 3600)
	if !io.Old() {
		tst.Error("a fresh IO should be due for a save")
	}
	if err := io.Save(&State{Iteration: 1}); err != nil {
		tst.Fatal(err)
	}
	if io.Old() {
		tst.Error("just saved, the next save should wait an hour")
	}

	io = NewIO(nil, []byte("x"), 0)
	if err := io.Save(&State{Iteration: 1}); err != nil {
		tst.Fatal(err)
	}
	if !io.Old() {
		tst.Error("with a zero interval every save should be due")
	}
}

func TestNilDB(tst *testing.T) {
	io := NewIO(nil, []byte("x"), 0)
	if err := io.Save(&State{Iteration: 1}); err != nil {
		tst.Errorf("save to a nil db should be a no-op, got %v", err)
	}
	got, err := io.Load()
	if got != nil || err != nil {
		tst.Errorf("load from a nil db: %v, %v", got, err)
	}
}
