// Package checkpoint persists the state of a dating run between
// iterations, so an interrupted run can resume.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the package logging variable.
var log = logging.MustGetLogger("checkpoint")

// main is the bucket holding all checkpoints.
var mainBucket = []byte("main")

// State is one saved iteration of a dating run: the fitted clock, the
// per-node branch lengths and dates indexed by node Id, and whether
// the run had finished.
type State struct {
	Iteration     int       `json:"iteration"`
	Rate          float64   `json:"rate"`
	Intercept     float64   `json:"intercept"`
	LnL           float64   `json:"lnL"`
	BranchLengths []float64 `json:"branchLengths"`
	Dates         []float64 `json:"dates"`
	Final         bool      `json:"final"`
}

// IO saves and restores run states in a bolt database under a key
// (typically a hash of the input files), rate limited by a minimum
// interval between saves.
type IO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewIO creates a checkpoint reader/writer.
func NewIO(db *bolt.DB, key []byte, seconds float64) *IO {
	return &IO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
}

// Save writes the state to the database.
func (s *IO) Save(state *State) error {
	// even if saving fails, do not retry too often
	s.SetNow()
	data, err := json.Marshal(state)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = saveData(s.db, s.key, data)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load returns the saved state, or nil if there is none.
func (s *IO) Load() (*State, error) {
	b, err := loadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	var state *State
	if err = json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	if state == nil || len(state.Dates) == 0 {
		return nil, nil
	}

	if state.Final {
		log.Noticef("Found finished run checkpoint (iter=%v, lnL=%v)", state.Iteration, state.LnL)
	} else {
		log.Noticef("Found unfinished run checkpoint (iter=%v, lnL=%v)", state.Iteration, state.LnL)
	}
	return state, nil
}

// Old returns true if the last save was long enough ago.
func (s *IO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow resets the save timer.
func (s *IO) SetNow() {
	s.last = time.Now()
}

func saveData(db *bolt.DB, key, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(mainBucket)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func loadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(mainBucket)
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
