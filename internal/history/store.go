package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/plan"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS feedback_records (
	id             TEXT PRIMARY KEY,
	plan_id        TEXT NOT NULL,
	strategy       TEXT NOT NULL DEFAULT '',
	pre_json       TEXT NOT NULL,
	post_json      TEXT NOT NULL,
	delta_json     TEXT NOT NULL,
	success        INTEGER NOT NULL,
	execution_ms   INTEGER NOT NULL,
	resources_used REAL NOT NULL,
	error_count    INTEGER NOT NULL,
	reward         REAL NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_records_strategy
ON feedback_records(strategy, created_at);

CREATE TABLE IF NOT EXISTS record_links (
	record_id  TEXT NOT NULL,
	related_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	PRIMARY KEY (record_id, position)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id       TEXT NOT NULL,
	plan_id        TEXT NOT NULL,
	strategy       TEXT NOT NULL,
	approved       INTEGER NOT NULL,
	fallback       INTEGER NOT NULL,
	adjusted_score REAL NOT NULL,
	verdicts_json  TEXT,
	reason         TEXT,
	created_at     TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store archives feedback records and audit rows in SQLite. The in-memory
// Lattice is the working set; the Store outlives it.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region save

// SaveRecord archives rec with its reward and related ids in one transaction.
func (s *Store) SaveRecord(rec feedback.Record, reward float64, related []string) error {
	preJSON, err := json.Marshal(rec.Pre)
	if err != nil {
		return fmt.Errorf("marshal pre: %w", err)
	}
	postJSON, err := json.Marshal(rec.Post)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	deltaJSON, err := json.Marshal(rec.Delta)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	success := 0
	if rec.Outcome.Success {
		success = 1
	}
	_, err = tx.Exec(
		`INSERT INTO feedback_records
		 (id, plan_id, strategy, pre_json, post_json, delta_json, success,
		  execution_ms, resources_used, error_count, reward, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PlanID, string(rec.Strategy),
		string(preJSON), string(postJSON), string(deltaJSON),
		success, rec.Outcome.ExecutionTime.Milliseconds(), rec.Outcome.ResourcesUsed,
		rec.Outcome.ErrorCount, reward, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	for i, id := range related {
		if _, err := tx.Exec(
			`INSERT INTO record_links (record_id, related_id, position) VALUES (?, ?, ?)`,
			rec.ID, id, i,
		); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
	}

	return tx.Commit()
}

// #endregion save

// #region load

// StoredRecord pairs an archived record with the reward computed at record time.
type StoredRecord struct {
	feedback.Record
	Reward  float64
	Related []string
}

// LoadRecent returns up to limit of the newest archived records, oldest first.
func (s *Store) LoadRecent(limit int) ([]StoredRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, plan_id, strategy, pre_json, post_json, delta_json, success,
		        execution_ms, resources_used, error_count, reward, created_at
		 FROM feedback_records ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var records []StoredRecord
	for rows.Next() {
		var rec StoredRecord
		var strategy, preJSON, postJSON, deltaJSON, createdStr string
		var success int
		var execMs int64

		if err := rows.Scan(&rec.ID, &rec.PlanID, &strategy, &preJSON, &postJSON, &deltaJSON,
			&success, &execMs, &rec.Outcome.ResourcesUsed, &rec.Outcome.ErrorCount,
			&rec.Reward, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Strategy = plan.Strategy(strategy)
		if err := json.Unmarshal([]byte(preJSON), &rec.Pre); err != nil {
			return nil, fmt.Errorf("unmarshal pre: %w", err)
		}
		if err := json.Unmarshal([]byte(postJSON), &rec.Post); err != nil {
			return nil, fmt.Errorf("unmarshal post: %w", err)
		}
		if err := json.Unmarshal([]byte(deltaJSON), &rec.Delta); err != nil {
			return nil, fmt.Errorf("unmarshal delta: %w", err)
		}
		rec.Outcome.Success = success == 1
		rec.Outcome.ExecutionTime = time.Duration(execMs) * time.Millisecond
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		related, err := s.links(records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Related = related
	}

	// newest-first from the query; callers want insertion order
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *Store) links(id string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT related_id FROM record_links WHERE record_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()

	var related []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		related = append(related, r)
	}
	return related, rows.Err()
}

// Restore refills lattice from the newest archived records, oldest first.
// Archived links to records that are not restored are dropped.
func (s *Store) Restore(l *Lattice) (int, error) {
	records, err := s.LoadRecent(l.Capacity())
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		l.Append(rec.Record)
	}
	// links may reach records older than the restored window
	live := make(map[string]bool, len(records))
	for _, rec := range l.All() {
		live[rec.ID] = true
	}
	for _, rec := range records {
		var related []string
		for _, id := range rec.Related {
			if live[id] {
				related = append(related, id)
			}
		}
		if len(related) > 0 {
			l.Link(rec.ID, related)
		}
	}
	return len(records), nil
}

// Count returns the number of archived records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM feedback_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// #endregion load

// #region best-strategy

// minStrategySamples is the sample count a strategy needs before it can win.
const minStrategySamples = 3

// rewardHalfLife controls how fast old rewards lose weight.
const rewardHalfLife = 7 * 24 * time.Hour

// StrategyReward is the decay-weighted mean reward of one strategy.
type StrategyReward struct {
	Strategy plan.Strategy
	Mean     float64
	Samples  int
}

// StrategyRewards aggregates decay-weighted rewards per strategy as of now.
func (s *Store) StrategyRewards(now time.Time) ([]StrategyReward, error) {
	rows, err := s.db.Query(
		`SELECT strategy, reward, created_at FROM feedback_records
		 WHERE strategy != '' ORDER BY strategy`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rewards: %w", err)
	}
	defer rows.Close()

	type accum struct {
		weightedSum float64
		totalWeight float64
		count       int
	}
	var order []plan.Strategy
	acc := make(map[plan.Strategy]*accum)

	for rows.Next() {
		var strategy, createdStr string
		var reward float64
		if err := rows.Scan(&strategy, &reward, &createdStr); err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			continue
		}
		age := now.Sub(createdAt)
		if age < 0 {
			age = 0
		}
		weight := math.Exp2(-age.Hours() / rewardHalfLife.Hours())

		sid := plan.Strategy(strategy)
		a, ok := acc[sid]
		if !ok {
			a = &accum{}
			acc[sid] = a
			order = append(order, sid)
		}
		a.weightedSum += reward * weight
		a.totalWeight += weight
		a.count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]StrategyReward, 0, len(order))
	for _, sid := range order {
		a := acc[sid]
		mean := 0.0
		if a.totalWeight > 0 {
			mean = a.weightedSum / a.totalWeight
		}
		out = append(out, StrategyReward{Strategy: sid, Mean: mean, Samples: a.count})
	}
	return out, nil
}

// BestStrategy returns the strategy with the highest decay-weighted reward among
// those with enough samples. Returns ("", 0, nil) when none qualifies.
func (s *Store) BestStrategy(now time.Time) (plan.Strategy, float64, error) {
	rewards, err := s.StrategyRewards(now)
	if err != nil {
		return "", 0, err
	}
	var best plan.Strategy
	bestScore := math.Inf(-1)
	for _, r := range rewards {
		if r.Samples < minStrategySamples {
			continue
		}
		if r.Mean > bestScore {
			bestScore = r.Mean
			best = r.Strategy
		}
	}
	if best == "" {
		return "", 0, nil
	}
	return best, bestScore, nil
}

// #endregion best-strategy
