// Package runstore keeps a sqlite catalogue of tracking and evaluation runs.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LdDl/lineage-go/lineage"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS lineage_runs (
		run_id              TEXT PRIMARY KEY,
		kind                TEXT NOT NULL,
		dataset             TEXT NOT NULL,
		oracle              TEXT,
		output_dir          TEXT,
		frame_count         INTEGER,
		track_count         INTEGER,
		detection_count     INTEGER,
		edge_count          INTEGER,
		division_events     INTEGER,
		mean_track_length   REAL,
		median_track_length REAL,
		short_track_count   INTEGER,
		fragmentation_rate  REAL,
		cell_count_std      REAL,
		params_json         TEXT,
		created_at          INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lineage_runs_dataset ON lineage_runs(dataset, created_at);
`

// Run kinds
const (
	KindTrack    = "track"
	KindEvaluate = "evaluate"
)

// Run is one persisted pipeline invocation with its evaluation summary.
type Run struct {
	RunID             string          `json:"run_id"`
	Kind              string          `json:"kind"`
	Dataset           string          `json:"dataset"`
	Oracle            string          `json:"oracle"`
	OutputDir         string          `json:"output_dir"`
	FrameCount        int             `json:"frame_count"`
	TrackCount        int             `json:"track_count"`
	DetectionCount    int             `json:"detection_count"`
	EdgeCount         int             `json:"edge_count"`
	DivisionEvents    int             `json:"division_events"`
	MeanTrackLength   float64         `json:"mean_track_length"`
	MedianTrackLength float64         `json:"median_track_length"`
	ShortTrackCount   int             `json:"short_track_count"`
	FragmentationRate float64         `json:"fragmentation_rate"`
	CellCountStd      float64         `json:"cell_count_std"`
	ParamsJSON        json.RawMessage `json:"params_json,omitempty"`
	CreatedAt         int64           `json:"created_at"`
}

// NewRun fills run statistics from evaluation report
func NewRun(kind, dataset string, report *lineage.EvaluationReport) *Run {
	return &Run{
		Kind:              kind,
		Dataset:           dataset,
		FrameCount:        report.FrameCount,
		TrackCount:        report.TrackCount,
		DetectionCount:    report.DetectionCount,
		EdgeCount:         report.EdgeCount,
		DivisionEvents:    report.DivisionEvents,
		MeanTrackLength:   report.TrackLength.Mean,
		MedianTrackLength: report.TrackLength.Median,
		ShortTrackCount:   report.ShortTrackCount,
		FragmentationRate: report.FragmentationRate,
		CellCountStd:      report.CellCount.StdDev,
	}
}

// Store provides persistence for runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) sqlite database at path and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps existing database handle and ensures schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create run schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists a new run. If RunID is empty, a UUID is generated.
func (s *Store) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	_, err := s.db.Exec(`
		INSERT INTO lineage_runs (
			run_id, kind, dataset, oracle, output_dir,
			frame_count, track_count, detection_count, edge_count, division_events,
			mean_track_length, median_track_length, short_track_count,
			fragmentation_rate, cell_count_std, params_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Kind, run.Dataset, run.Oracle, run.OutputDir,
		run.FrameCount, run.TrackCount, run.DetectionCount, run.EdgeCount, run.DivisionEvents,
		run.MeanTrackLength, run.MedianTrackLength, run.ShortTrackCount,
		run.FragmentationRate, run.CellCountStd, paramsStr, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT run_id, kind, dataset, oracle, output_dir,
	       frame_count, track_count, detection_count, edge_count, division_events,
	       mean_track_length, median_track_length, short_track_count,
	       fragmentation_rate, cell_count_std, params_json, created_at
	FROM lineage_runs`

// Get returns a single run by ID.
func (s *Store) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(selectColumns+` WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// List returns runs ordered by creation time descending. Empty dataset lists every dataset.
// Non-positive limit means no limit.
func (s *Store) List(dataset string, limit int) ([]*Run, error) {
	query := selectColumns
	args := make([]interface{}, 0, 2)
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var oracle, outputDir, paramsStr sql.NullString
	err := row.Scan(
		&r.RunID, &r.Kind, &r.Dataset, &oracle, &outputDir,
		&r.FrameCount, &r.TrackCount, &r.DetectionCount, &r.EdgeCount, &r.DivisionEvents,
		&r.MeanTrackLength, &r.MedianTrackLength, &r.ShortTrackCount,
		&r.FragmentationRate, &r.CellCountStd, &paramsStr, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Oracle = oracle.String
	r.OutputDir = outputDir.String
	if paramsStr.Valid {
		r.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &r, nil
}
