package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var _ Store = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	id INTEGER PRIMARY KEY,
	query_id_step1 TEXT NOT NULL,
	query_id_step2 TEXT,
	status TEXT NOT NULL CHECK (status IN ('PIE_SUBMITTED', 'FAILED', 'PIE_PROOF_GENERATED', 'BRIDGE_PROOF_SUBMITED', 'COMPLETED'))
);
CREATE INDEX IF NOT EXISTS idx_blocks_status ON blocks(status);
CREATE TABLE IF NOT EXISTS proofs (
	id INTEGER NOT NULL PRIMARY KEY,
	block_number INTEGER,
	pie_proof TEXT,
	bridge_proof TEXT,
	FOREIGN KEY (block_number) REFERENCES blocks(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_proofs_block_number ON proofs(block_number);
`

// SQLite is the durable Store backed by a single SQLite file.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at cfg.Path and ensures the schema.
func OpenSQLite(ctx context.Context, cfg Config, log zerolog.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}

	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=FULL&_foreign_keys=on&_busy_timeout=%d",
		cfg.Path, cfg.BusyTimeout.Milliseconds(),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	// One writer connection serializes row updates across the pipeline tasks.
	db.SetMaxOpenConns(1)

	s := &SQLite{
		db:  db,
		log: log.With().Str("component", "job-store").Logger(),
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s.log.Info().Str("path", cfg.Path).Msg("Job store opened")
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) InsertBlock(ctx context.Context, id uint64, queryIDStep1 string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(status))
	}
	const q = `INSERT INTO blocks (id, query_id_step1, status) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, queryIDStep1, status.String()); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("block %d: %w", id, ErrDuplicateKey)
		}
		return fmt.Errorf("insert block %d: %w", id, err)
	}
	return nil
}

func (s *SQLite) GetBlock(ctx context.Context, id uint64) (BlockJob, error) {
	const q = `SELECT id, query_id_step1, query_id_step2, status FROM blocks WHERE id = ?`
	job, err := scanBlock(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return BlockJob{}, fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return BlockJob{}, fmt.Errorf("get block %d: %w", id, err)
	}
	return job, nil
}

func (s *SQLite) ListBlocks(ctx context.Context) ([]BlockJob, error) {
	const q = `SELECT id, query_id_step1, query_id_step2, status FROM blocks ORDER BY id ASC`
	return s.queryBlocks(ctx, q)
}

func (s *SQLite) ListBlocksByStatus(ctx context.Context, status Status) ([]BlockJob, error) {
	const q = `SELECT id, query_id_step1, query_id_step2, status FROM blocks WHERE status = ? ORDER BY id ASC`
	return s.queryBlocks(ctx, q, status.String())
}

func (s *SQLite) CountBlocksByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks WHERE status = ?`, status.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count blocks by status %s: %w", status, err)
	}
	return n, nil
}

func (s *SQLite) UpdateStatus(ctx context.Context, id uint64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(status))
	}

	from := predecessors(status)
	args := make([]any, 0, len(from)+2)
	args = append(args, status.String(), id)
	for _, st := range from {
		args = append(args, st.String())
	}
	q := `UPDATE blocks SET status = ? WHERE id = ?`
	if len(from) > 0 {
		q += ` AND status IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ") + `)`
	} else {
		q += ` AND 0`
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update block %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := s.GetBlock(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == status {
		return nil
	}
	return fmt.Errorf("block %d %s -> %s: %w", id, current.Status, status, ErrInvalidTransition)
}

func (s *SQLite) UpdateQueryIDStep2(ctx context.Context, id uint64, queryID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE blocks SET query_id_step2 = ? WHERE id = ?`, queryID, id)
	if err != nil {
		return fmt.Errorf("update block %d query id: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) InsertProof(ctx context.Context, id uint64, stage ProofStage, proof string) error {
	col, err := stage.column()
	if err != nil {
		return err
	}
	q := fmt.Sprintf(
		`INSERT INTO proofs (block_number, %[1]s) VALUES (?, ?)
		 ON CONFLICT(block_number) DO UPDATE SET %[1]s = excluded.%[1]s`, col)
	if _, err := s.db.ExecContext(ctx, q, id, proof); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return fmt.Errorf("block %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("insert %s proof for block %d: %w", stage, id, err)
	}
	return nil
}

func (s *SQLite) GetProof(ctx context.Context, id uint64, stage ProofStage) (string, error) {
	col, err := stage.column()
	if err != nil {
		return "", err
	}
	var proof sql.NullString
	q := fmt.Sprintf(`SELECT %s FROM proofs WHERE block_number = ?`, col)
	err = s.db.QueryRowContext(ctx, q, id).Scan(&proof)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !proof.Valid) {
		return "", fmt.Errorf("%s proof for block %d: %w", stage, id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get %s proof for block %d: %w", stage, id, err)
	}
	return proof.String, nil
}

func (s *SQLite) DeleteProof(ctx context.Context, id uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM proofs WHERE block_number = ?`, id)
	if err != nil {
		return fmt.Errorf("delete proofs for block %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("proofs for block %d: %w", id, ErrNotFound)
	}
	s.log.Info().Uint64("block", id).Msg("Deleted proof record")
	return nil
}

func (s *SQLite) queryBlocks(ctx context.Context, q string, args ...any) ([]BlockJob, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var out []BlockJob
	for rows.Next() {
		job, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (BlockJob, error) {
	var (
		job    BlockJob
		step2  sql.NullString
		status string
	)
	if err := row.Scan(&job.ID, &job.QueryIDStep1, &step2, &status); err != nil {
		return BlockJob{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return BlockJob{}, fmt.Errorf("decode block %d: %w", job.ID, err)
	}
	job.Status = st
	job.QueryIDStep2 = step2.String
	return job, nil
}
