package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/layerkit/layerkit/pkg/layer"
	"github.com/layerkit/layerkit/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// observerTimeout bounds a journal write made from an observer callback.
const observerTimeout = 5 * time.Second

// Journal implements the Store interface using SQLite.
type Journal struct {
	db     *sql.DB
	cfg    Config
	logger *telemetry.Logger
}

var _ Store = (*Journal)(nil)

// Config holds SQLite journal configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Logger receives write failures from observer callbacks. Defaults to a
	// disabled logger.
	Logger *telemetry.Logger
}

// NewJournal creates a new journal instance
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens its own database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	return &Journal{
		cfg:    cfg,
		logger: logger.NewComponentLogger("journal"),
	}, nil
}

// Init opens the database and enables WAL mode.
func (s *Journal) Init(ctx context.Context) error {
	dsn := s.cfg.Path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *Journal) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *Journal) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordTransition appends a state transition. A missing ID or time is
// filled in.
func (s *Journal) RecordTransition(ctx context.Context, t *Transition) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}

	query := `
		INSERT INTO layer_state_transitions (id, layer_id, layer_type, from_state, to_state, at_unix_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.LayerID,
		t.LayerType,
		t.From,
		t.To,
		t.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}

	return nil
}

// RecordIdentify appends an identify completion.
func (s *Journal) RecordIdentify(ctx context.Context, r *IdentifyRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	sublayers := r.Sublayers
	if sublayers == nil {
		sublayers = []string{}
	}
	encoded, err := json.Marshal(sublayers)
	if err != nil {
		return fmt.Errorf("failed to encode sublayers: %w", err)
	}

	query := `
		INSERT INTO identify_requests (id, request_id, layer_id, layer_type, sublayers, hits, duration_ns, error, at_unix_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		r.RequestID,
		r.LayerID,
		r.LayerType,
		string(encoded),
		r.Hits,
		int64(r.Duration),
		r.Error,
		r.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record identify request: %w", err)
	}

	return nil
}

// ListTransitions lists transitions oldest first.
func (s *Journal) ListTransitions(ctx context.Context, f Filter) ([]*Transition, error) {
	query := `
		SELECT id, layer_id, layer_type, from_state, to_state, at_unix_ns
		FROM layer_state_transitions
		WHERE (? = '' OR layer_id = ?)
		  AND at_unix_ns >= ?
		ORDER BY at_unix_ns ASC, rowid ASC
		LIMIT ? OFFSET ?
	`

	limit, since := f.bounds()
	rows, err := s.db.QueryContext(ctx, query, f.LayerID, f.LayerID, since, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	transitions := []*Transition{}
	for rows.Next() {
		t := &Transition{}
		var at int64
		if err := rows.Scan(&t.ID, &t.LayerID, &t.LayerType, &t.From, &t.To, &at); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.At = time.Unix(0, at)
		transitions = append(transitions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return transitions, nil
}

// ListIdentifyRequests lists identify completions oldest first.
func (s *Journal) ListIdentifyRequests(ctx context.Context, f Filter) ([]*IdentifyRequest, error) {
	query := `
		SELECT id, request_id, layer_id, layer_type, sublayers, hits, duration_ns, error, at_unix_ns
		FROM identify_requests
		WHERE (? = '' OR layer_id = ?)
		  AND at_unix_ns >= ?
		ORDER BY at_unix_ns ASC, rowid ASC
		LIMIT ? OFFSET ?
	`

	limit, since := f.bounds()
	rows, err := s.db.QueryContext(ctx, query, f.LayerID, f.LayerID, since, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list identify requests: %w", err)
	}
	return scanIdentifyRequests(rows)
}

// GetIdentifyRequest returns every layer's row for one identify request.
func (s *Journal) GetIdentifyRequest(ctx context.Context, requestID string) ([]*IdentifyRequest, error) {
	query := `
		SELECT id, request_id, layer_id, layer_type, sublayers, hits, duration_ns, error, at_unix_ns
		FROM identify_requests
		WHERE request_id = ?
		ORDER BY at_unix_ns ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get identify request: %w", err)
	}
	reqs, err := scanIdentifyRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("identify request not found: %s", requestID)
	}
	return reqs, nil
}

func scanIdentifyRequests(rows *sql.Rows) ([]*IdentifyRequest, error) {
	defer rows.Close()

	reqs := []*IdentifyRequest{}
	for rows.Next() {
		r := &IdentifyRequest{}
		var sublayers string
		var duration, at int64
		err := rows.Scan(
			&r.ID,
			&r.RequestID,
			&r.LayerID,
			&r.LayerType,
			&sublayers,
			&r.Hits,
			&duration,
			&r.Error,
			&at,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identify request: %w", err)
		}
		if err := json.Unmarshal([]byte(sublayers), &r.Sublayers); err != nil {
			return nil, fmt.Errorf("failed to decode sublayers of %s: %w", r.ID, err)
		}
		r.Duration = time.Duration(duration)
		r.At = time.Unix(0, at)
		reqs = append(reqs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identify requests: %w", err)
	}

	return reqs, nil
}

// LayerSummaries returns the latest state of every journaled layer.
func (s *Journal) LayerSummaries(ctx context.Context) ([]*LayerSummary, error) {
	query := `
		SELECT t.layer_id, t.layer_type, t.to_state, t.at_unix_ns, c.n
		FROM layer_state_transitions t
		JOIN (
			SELECT layer_id, MAX(rowid) AS last, COUNT(*) AS n
			FROM layer_state_transitions
			GROUP BY layer_id
		) c ON t.rowid = c.last
		ORDER BY t.layer_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise layers: %w", err)
	}
	defer rows.Close()

	out := []*LayerSummary{}
	for rows.Next() {
		sum := &LayerSummary{}
		var at int64
		if err := rows.Scan(&sum.LayerID, &sum.LayerType, &sum.State, &at, &sum.Transitions); err != nil {
			return nil, fmt.Errorf("failed to scan layer summary: %w", err)
		}
		sum.Since = time.Unix(0, at)
		out = append(out, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating layer summaries: %w", err)
	}

	return out, nil
}

// Prune deletes every row older than before and returns how many went.
func (s *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"layer_state_transitions", "identify_requests"} {
		result, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE at_unix_ns < ?", before.UnixNano())
		if err != nil {
			return 0, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return total, nil
}

// StateChanged journals a record's state change. Failures are logged.
func (s *Journal) StateChanged(c layer.StateChange) {
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()

	err := s.RecordTransition(ctx, &Transition{
		LayerID:   c.LayerID,
		LayerType: string(c.LayerType),
		From:      string(c.From),
		To:        string(c.To),
		At:        c.At,
	})
	if err != nil {
		s.logger.WithLayerID(c.LayerID).WithError(err).Warn("failed to journal state change")
	}
}

// IdentifyCompleted journals an identify completion. Failures are logged.
func (s *Journal) IdentifyCompleted(r layer.IdentifyReport) {
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()

	req := &IdentifyRequest{
		RequestID: r.RequestID,
		LayerID:   r.LayerID,
		LayerType: string(r.LayerType),
		Sublayers: r.Sublayers,
		Hits:      r.Hits,
		Duration:  r.Duration,
	}
	if r.Err != nil {
		msg := r.Err.Error()
		req.Error = &msg
	}
	if err := s.RecordIdentify(ctx, req); err != nil {
		s.logger.WithLayerID(r.LayerID).WithRequestID(r.RequestID).WithError(err).Warn("failed to journal identify")
	}
}

// HealthCheck verifies the database connection is healthy
func (s *Journal) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// bounds turns the filter's zero values into query arguments.
func (f Filter) bounds() (limit int, since int64) {
	limit = f.Limit
	if limit <= 0 {
		limit = -1
	}
	if !f.Since.IsZero() {
		since = f.Since.UnixNano()
	}
	return limit, since
}
