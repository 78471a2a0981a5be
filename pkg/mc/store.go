package mc

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/warp/pkg/trace"
)

var (
	// Bucket names
	bucketRuns     = []byte("runs")
	bucketFailures = []byte("failures")
)

// RunSummary is the archived record of one exploration run.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	StatesVisited uint64    `json:"states_visited"`
	StatesPruned  uint64    `json:"states_pruned"`
	Collected     int       `json:"collected"`
	Failure       string    `json:"failure,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// FailureRecord is the archived counterexample of a failed run.
type FailureRecord struct {
	RunID  string         `json:"run_id"`
	Reason string         `json:"reason"`
	Trace  []trace.Record `json:"trace"`
}

// TraceStore archives model-checker run summaries and failure traces in a
// BoltDB file, keyed by run id, for post-mortem inspection.
type TraceStore struct {
	db *bolt.DB
}

// OpenTraceStore opens (or creates) the trace archive in dataDir.
func OpenTraceStore(dataDir string) (*TraceStore, error) {
	dbPath := filepath.Join(dataDir, "mc-traces.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketFailures} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &TraceStore{db: db}, nil
}

// Close closes the archive
func (s *TraceStore) Close() error {
	return s.db.Close()
}

// SaveRun archives a run summary.
func (s *TraceStore) SaveRun(stats *Stats, failure string) error {
	summary := RunSummary{
		RunID:         stats.RunID,
		StatesVisited: stats.StatesVisited,
		StatesPruned:  stats.StatesPruned,
		Collected:     len(stats.Collected),
		Failure:       failure,
		FinishedAt:    time.Now().UTC(),
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal run summary: %w", err)
		}
		return tx.Bucket(bucketRuns).Put([]byte(summary.RunID), data)
	})
}

// SaveFailure archives a counterexample trace.
func (s *TraceStore) SaveFailure(runErr *RunError) error {
	record := FailureRecord{
		RunID:  runErr.RunID,
		Reason: runErr.Reason,
		Trace:  runErr.Trace,
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal failure record: %w", err)
		}
		return tx.Bucket(bucketFailures).Put([]byte(record.RunID), data)
	})
}

// GetRun fetches an archived run summary by id.
func (s *TraceStore) GetRun(runID string) (*RunSummary, error) {
	var summary RunSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run %s not found", runID)
		}
		return json.Unmarshal(data, &summary)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetFailure fetches an archived failure trace by run id.
func (s *TraceStore) GetFailure(runID string) (*FailureRecord, error) {
	var record FailureRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFailures).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("failure for run %s not found", runID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRuns returns every archived run summary.
func (s *TraceStore) ListRuns() ([]*RunSummary, error) {
	var runs []*RunSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, data []byte) error {
			var summary RunSummary
			if err := json.Unmarshal(data, &summary); err != nil {
				return err
			}
			runs = append(runs, &summary)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}
