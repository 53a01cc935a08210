package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rendis/yelptap/internal/model"
)

var ErrNoRun = errors.New("no run started")

// Run is one scan session recorded in the store.
type Run struct {
	ID        string
	Category  string
	Location  string
	StartedAt time.Time
}

type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	runID string
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// Optimize for write throughput
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		location TEXT NOT NULL,
		started_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS businesses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		name TEXT NOT NULL,
		rating TEXT,
		num_reviews INTEGER,
		yelp_url TEXT NOT NULL,
		website TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, yelp_url)
	);
	CREATE TABLE IF NOT EXISTS reviews (
		business_id INTEGER NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		reviewer_name TEXT,
		reviewer_location TEXT,
		review_date TEXT,
		PRIMARY KEY (business_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_businesses_run ON businesses(run_id);
	CREATE INDEX IF NOT EXISTS idx_businesses_website ON businesses(website);
	`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// StartRun registers a new run for q and makes it the target of Emit.
func (s *Store) StartRun(q model.SearchQuery) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, category, location, started_at) VALUES (?,?,?,?)`,
		id, q.Category, q.Location, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	s.runID = id
	return id, nil
}

// RunID returns the run Emit currently writes to.
func (s *Store) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Emit stores one record under the current run.
func (s *Store) Emit(rec model.BusinessRecord) error {
	_, err := s.InsertBatch([]model.BusinessRecord{rec})
	return err
}

// InsertBatch stores recs under the current run in one transaction. Records
// whose detail URL is already stored for the run are skipped.
func (s *Store) InsertBatch(recs []model.BusinessRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID == "" {
		return 0, ErrNoRun
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}

	bizStmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO businesses (run_id, name, rating, num_reviews, yelp_url, website)
		VALUES (?,?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer bizStmt.Close()

	revStmt, err := tx.Prepare(`
		INSERT INTO reviews (business_id, position, reviewer_name, reviewer_location, review_date)
		VALUES (?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer revStmt.Close()

	inserted := 0
	for _, r := range recs {
		res, err := bizStmt.Exec(s.runID, r.Name, r.Rating, r.NumReviews, r.DetailURL, r.Website)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("inserting %s: %w", r.DetailURL, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		bizID, err := res.LastInsertId()
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("reading business id: %w", err)
		}
		for i, rv := range r.Reviews {
			if _, err := revStmt.Exec(bizID, i, rv.ReviewerName, rv.ReviewerLocation, rv.ReviewDate); err != nil {
				tx.Rollback()
				return 0, fmt.Errorf("inserting review: %w", err)
			}
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}

	return inserted, nil
}

// Runs lists every run, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, category, location, started_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Category, &r.Location, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRecords returns the records of runID in insertion order, or of every
// run when runID is empty.
func (s *Store) LoadRecords(runID string) ([]model.BusinessRecord, error) {
	query := `SELECT id, name, rating, num_reviews, yelp_url, website FROM businesses`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying businesses: %w", err)
	}

	var (
		ids  []int64
		recs []model.BusinessRecord
	)
	for rows.Next() {
		var (
			id      int64
			r       model.BusinessRecord
			rating  sql.NullString
			website sql.NullString
			count   sql.NullInt64
		)
		if err := rows.Scan(&id, &r.Name, &rating, &count, &r.DetailURL, &website); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning business: %w", err)
		}
		r.Rating = rating.String
		r.Website = website.String
		r.NumReviews = int(count.Int64)
		r.Reviews = []model.ReviewEntry{}
		ids = append(ids, id)
		recs = append(recs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		reviews, err := s.loadReviews(id)
		if err != nil {
			return nil, err
		}
		recs[i].Reviews = reviews
	}
	return recs, nil
}

func (s *Store) loadReviews(businessID int64) ([]model.ReviewEntry, error) {
	rows, err := s.db.Query(`
		SELECT reviewer_name, reviewer_location, review_date
		FROM reviews WHERE business_id = ? ORDER BY position
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("querying reviews: %w", err)
	}
	defer rows.Close()

	reviews := []model.ReviewEntry{}
	for rows.Next() {
		var name, loc, date sql.NullString
		if err := rows.Scan(&name, &loc, &date); err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		reviews = append(reviews, model.ReviewEntry{
			ReviewerName:     name.String,
			ReviewerLocation: loc.String,
			ReviewDate:       date.String,
		})
	}
	return reviews, rows.Err()
}

func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM businesses").Scan(&count)
	return count, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
