// Package store persists rule sets and match results in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"minimaxing/game"
	"minimaxing/ruleset"
)

const schema = `
CREATE TABLE IF NOT EXISTS rulesets (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	hash         TEXT NOT NULL,
	body         TEXT NOT NULL,
	search_depth INTEGER NOT NULL,
	parent_id    TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS rulesets_hash ON rulesets (hash);

CREATE TABLE IF NOT EXISTS matches (
	id          TEXT PRIMARY KEY,
	white_id    TEXT NOT NULL REFERENCES rulesets (id),
	black_id    TEXT NOT NULL REFERENCES rulesets (id),
	status      TEXT NOT NULL,
	result      TEXT NOT NULL DEFAULT '',
	termination TEXT NOT NULL DEFAULT '',
	pgn         TEXT NOT NULL DEFAULT '',
	plies       TEXT NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS matches_status ON matches (status);
`

var (
	ErrNotFound = errors.New("not found")
	// ErrReferenced guards rule sets that a match has used: they may be
	// cloned but never changed or removed.
	ErrReferenced = errors.New("rule set is referenced by a match")
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type RuleSetRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Hash      string          `json:"hash"`
	RuleSet   ruleset.RuleSet `json:"ruleset"`
	ParentID  string          `json:"parent_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type MatchRecord struct {
	ID          string     `json:"id"`
	WhiteID     string     `json:"white_id"`
	BlackID     string     `json:"black_id"`
	Status      Status     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Termination string     `json:"termination,omitempty"`
	PGN         string     `json:"pgn,omitempty"`
	Plies       []game.Ply `json:"plies"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Store manages rule sets and matches in a SQL database.
type Store struct {
	db       *sql.DB
	postgres bool
	log      zerolog.Logger
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open connects to driver ("sqlite" or "postgres") and runs migrations.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	s := &Store{log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	switch driver {
	case "sqlite":
	case "postgres":
		s.postgres = true
	default:
		return nil, errors.Errorf("unknown database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	if s.postgres {
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "ping")
		}
	} else {
		// One writer at a time; SQLite serializes anyway.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "pragma fk")
		}
		if dsn != ":memory:" {
			if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
				db.Close()
				return nil, errors.Wrap(err, "pragma wal")
			}
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	s.db = db
	s.log.Info().Str("driver", driver).Msg("store ready")
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func rebind(postgres bool, query string) string {
	if !postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) q(query string) string { return rebind(s.postgres, query) }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const ruleSetColumns = `id, name, hash, body, parent_id, created_at, updated_at`

func scanRuleSet(row scanner) (RuleSetRecord, error) {
	var (
		rec                RuleSetRecord
		body, created, upd string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Hash, &body, &rec.ParentID, &created, &upd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RuleSetRecord{}, ErrNotFound
		}
		return RuleSetRecord{}, errors.Wrap(err, "scan rule set")
	}
	if err := json.Unmarshal([]byte(body), &rec.RuleSet); err != nil {
		return RuleSetRecord{}, errors.Wrapf(err, "decode rule set %s", rec.ID)
	}
	rec.CreatedAt, rec.UpdatedAt = parseTime(created), parseTime(upd)
	return rec, nil
}

// CreateRuleSet stores rs under a new id. parentID names the rule set it was
// cloned from, if any.
func (s *Store) CreateRuleSet(ctx context.Context, name string, rs ruleset.RuleSet, parentID string) (RuleSetRecord, error) {
	if err := rs.Validate(); err != nil {
		return RuleSetRecord{}, err
	}
	ts := now()
	rec := RuleSetRecord{
		ID:        uuid.New().String(),
		Name:      name,
		Hash:      rs.Hash(),
		RuleSet:   rs.Clone(),
		ParentID:  parentID,
		CreatedAt: parseTime(ts),
		UpdatedAt: parseTime(ts),
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO rulesets (id, name, hash, body, search_depth, parent_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, name, rec.Hash, string(rs.Canonical()), rs.SearchDepth, parentID, ts, ts,
	)
	if err != nil {
		return RuleSetRecord{}, errors.Wrap(err, "insert rule set")
	}
	return rec, nil
}

func (s *Store) GetRuleSet(ctx context.Context, id string) (RuleSetRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+ruleSetColumns+` FROM rulesets WHERE id = ?`), id)
	return scanRuleSet(row)
}

// ListRuleSets returns rule sets oldest first, restricted to hash when it is
// not empty.
func (s *Store) ListRuleSets(ctx context.Context, hash string) ([]RuleSetRecord, error) {
	query, args := `SELECT `+ruleSetColumns+` FROM rulesets`, []interface{}{}
	if hash != "" {
		query += ` WHERE hash = ?`
		args = append(args, hash)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY created_at, id`), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list rule sets")
	}
	defer rows.Close()
	var out []RuleSetRecord
	for rows.Next() {
		rec, err := scanRuleSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "list rule sets")
}

func referenced(ctx context.Context, tx *sql.Tx, postgres bool, id string) error {
	var n int
	err := tx.QueryRowContext(ctx, rebind(postgres, `SELECT COUNT(*) FROM matches WHERE white_id = ? OR black_id = ?`), id, id).Scan(&n)
	if err != nil {
		return errors.Wrap(err, "count references")
	}
	if n > 0 {
		return ErrReferenced
	}
	return nil
}

// UpdateRuleSet replaces the content of an unreferenced rule set.
func (s *Store) UpdateRuleSet(ctx context.Context, id string, rs ruleset.RuleSet) (RuleSetRecord, error) {
	if err := rs.Validate(); err != nil {
		return RuleSetRecord{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RuleSetRecord{}, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := scanRuleSet(tx.QueryRowContext(ctx, s.q(`SELECT `+ruleSetColumns+` FROM rulesets WHERE id = ?`), id)); err != nil {
		return RuleSetRecord{}, err
	}
	if err := referenced(ctx, tx, s.postgres, id); err != nil {
		return RuleSetRecord{}, err
	}
	_, err = tx.ExecContext(ctx, s.q(
		`UPDATE rulesets SET hash = ?, body = ?, search_depth = ?, updated_at = ? WHERE id = ?`),
		rs.Hash(), string(rs.Canonical()), rs.SearchDepth, now(), id,
	)
	if err != nil {
		return RuleSetRecord{}, errors.Wrap(err, "update rule set")
	}
	rec, err := scanRuleSet(tx.QueryRowContext(ctx, s.q(`SELECT `+ruleSetColumns+` FROM rulesets WHERE id = ?`), id))
	if err != nil {
		return RuleSetRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return RuleSetRecord{}, errors.Wrap(err, "commit")
	}
	return rec, nil
}

// DeleteRuleSet removes an unreferenced rule set.
func (s *Store) DeleteRuleSet(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := referenced(ctx, tx, s.postgres, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM rulesets WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "delete rule set")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return errors.Wrap(tx.Commit(), "commit")
}

const matchColumns = `id, white_id, black_id, status, result, termination, pgn, plies, error, created_at, updated_at`

func scanMatch(row scanner) (MatchRecord, error) {
	var (
		rec                 MatchRecord
		plies, created, upd string
	)
	err := row.Scan(&rec.ID, &rec.WhiteID, &rec.BlackID, &rec.Status, &rec.Result, &rec.Termination,
		&rec.PGN, &plies, &rec.Error, &created, &upd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MatchRecord{}, ErrNotFound
		}
		return MatchRecord{}, errors.Wrap(err, "scan match")
	}
	if err := json.Unmarshal([]byte(plies), &rec.Plies); err != nil {
		return MatchRecord{}, errors.Wrapf(err, "decode plies of %s", rec.ID)
	}
	rec.CreatedAt, rec.UpdatedAt = parseTime(created), parseTime(upd)
	return rec, nil
}

// CreateMatch queues a match between two stored rule sets.
func (s *Store) CreateMatch(ctx context.Context, whiteID, blackID string) (MatchRecord, error) {
	for _, id := range []string{whiteID, blackID} {
		if _, err := s.GetRuleSet(ctx, id); err != nil {
			return MatchRecord{}, errors.Wrapf(err, "rule set %s", id)
		}
	}
	ts := now()
	rec := MatchRecord{
		ID:        uuid.New().String(),
		WhiteID:   whiteID,
		BlackID:   blackID,
		Status:    StatusQueued,
		Plies:     []game.Ply{},
		CreatedAt: parseTime(ts),
		UpdatedAt: parseTime(ts),
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO matches (id, white_id, black_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID, whiteID, blackID, string(StatusQueued), ts, ts,
	)
	if err != nil {
		return MatchRecord{}, errors.Wrap(err, "insert match")
	}
	return rec, nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (MatchRecord, error) {
	return scanMatch(s.db.QueryRowContext(ctx, s.q(`SELECT `+matchColumns+` FROM matches WHERE id = ?`), id))
}

// ListMatches returns matches oldest first, restricted to status when it is
// not empty.
func (s *Store) ListMatches(ctx context.Context, status Status) ([]MatchRecord, error) {
	query, args := `SELECT `+matchColumns+` FROM matches`, []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY created_at, id`), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list matches")
	}
	defer rows.Close()
	var out []MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "list matches")
}

func (s *Store) setStatus(ctx context.Context, id string, from []Status, to Status, set string, args ...interface{}) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `UPDATE matches SET status = ?, updated_at = ?` + set + ` WHERE id = ? AND status IN (` + placeholders + `)`
	all := append([]interface{}{string(to), now()}, args...)
	all = append(all, id)
	for _, f := range from {
		all = append(all, string(f))
	}
	res, err := s.db.ExecContext(ctx, s.q(query), all...)
	if err != nil {
		return errors.Wrapf(err, "set match %s %s", id, to)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "match %s in state %v", id, from)
	}
	return nil
}

// StartMatch moves a queued match to running.
func (s *Store) StartMatch(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, []Status{StatusQueued}, StatusRunning, "")
}

// CompleteMatch stores the record of a finished match.
func (s *Store) CompleteMatch(ctx context.Context, id string, rec game.Record) error {
	plies, err := json.Marshal(pliesOf(rec))
	if err != nil {
		return errors.Wrap(err, "encode plies")
	}
	return s.setStatus(ctx, id, []Status{StatusRunning}, StatusCompleted,
		`, result = ?, termination = ?, pgn = ?, plies = ?`,
		rec.Result, string(rec.Termination), rec.PGN, string(plies))
}

// FailMatch marks a queued or running match failed, keeping whatever part of
// the record was produced.
func (s *Store) FailMatch(ctx context.Context, id string, cause error, rec game.Record) error {
	plies, err := json.Marshal(pliesOf(rec))
	if err != nil {
		return errors.Wrap(err, "encode plies")
	}
	return s.setStatus(ctx, id, []Status{StatusQueued, StatusRunning}, StatusFailed,
		`, error = ?, pgn = ?, plies = ?`,
		cause.Error(), rec.PGN, string(plies))
}

func pliesOf(rec game.Record) []game.Ply {
	if rec.Plies == nil {
		return []game.Ply{}
	}
	return rec.Plies
}
