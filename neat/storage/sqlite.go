package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/baldhumanity/neat-medoids/neat"
)

// SQLiteStore keeps checkpoints as versioned JSON rows keyed by (run_name, generation).
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sqlx.DB
}

var (
	_ neat.CheckpointStore   = (*SQLiteStore)(nil)
	_ neat.GenerationLister = (*SQLiteStore)(nil)
)

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database and creates the schema. It is a no-op when already open.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sqlx.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp *neat.Checkpoint) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_name, generation, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_name, generation) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, cp.Name, cp.Generation, CurrentSchemaVersion, CurrentCodecVersion, payload)
	return err
}

type checkpointRow struct {
	SchemaVersion int    `db:"schema_version"`
	CodecVersion  int    `db:"codec_version"`
	Payload       []byte `db:"payload"`
}

func (s *SQLiteStore) Load(ctx context.Context, name string, generation int) (*neat.Checkpoint, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var row checkpointRow
	err = db.GetContext(ctx, &row, `
		SELECT schema_version, codec_version, payload FROM checkpoints
		WHERE run_name = ? AND generation = ?
	`, name, generation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %q generation %d", neat.ErrCheckpointNotFound, name, generation)
		}
		return nil, err
	}
	if err := checkVersion(row.SchemaVersion, row.CodecVersion); err != nil {
		return nil, fmt.Errorf("run %q generation %d: %w", name, generation, err)
	}
	cp, err := DecodeCheckpoint(row.Payload)
	if err != nil {
		return nil, fmt.Errorf("run %q generation %d: %w", name, generation, err)
	}
	return cp, nil
}

// Generations lists the saved generations of a run in ascending order.
func (s *SQLiteStore) Generations(ctx context.Context, name string) ([]int, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var gens []int
	err = db.SelectContext(ctx, &gens, `
		SELECT generation FROM checkpoints WHERE run_name = ? ORDER BY generation
	`, name)
	return gens, err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("sqlite store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_name TEXT NOT NULL,
			generation INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_name, generation)
		);
	`)
	return err
}
