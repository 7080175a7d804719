package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
)

// SQLiteMappingStore persists event-pattern mappings in a single SQLite table
// keyed by (event_id, pattern_id).
type SQLiteMappingStore struct {
	db *sql.DB
}

// NewSQLiteMappingStore opens (or creates) the database at path. Use
// ":memory:" for a throwaway store.
func NewSQLiteMappingStore(path string) (*SQLiteMappingStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping database: %w", err)
	}

	// SQLite serializes writes; a single connection also keeps ":memory:" alive
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to mapping database: %w", err)
	}

	store := &SQLiteMappingStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize mapping schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteMappingStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS event_pattern_mappings (
		event_id TEXT NOT NULL,
		pattern_id TEXT NOT NULL,
		mapping_score REAL NOT NULL,
		mapping_type TEXT NOT NULL,
		confidence REAL NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		metadata TEXT,
		PRIMARY KEY (event_id, pattern_id)
	);

	CREATE INDEX IF NOT EXISTS idx_mappings_pattern_id ON event_pattern_mappings(pattern_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteMappingStore) Close() error {
	return s.db.Close()
}

// SaveMapping inserts or replaces m.
func (s *SQLiteMappingStore) SaveMapping(ctx context.Context, m *model.EventPatternMapping) error {
	var metadata sql.NullString
	if len(m.Metadata) > 0 {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return errs.New(errs.KindInvalidArgument, "mappings.save", "failed to marshal metadata", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO event_pattern_mappings
			(event_id, pattern_id, mapping_score, mapping_type, confidence, created_at, updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		m.EventID,
		m.PatternID,
		m.Score,
		m.Type.String(),
		m.Confidence,
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
		m.UpdatedAt.UTC().Format(time.RFC3339Nano),
		metadata,
	)
	if err != nil {
		return errs.Storage("mappings.save", err)
	}
	return nil
}

func (s *SQLiteMappingStore) DeleteMapping(ctx context.Context, eventID, patternID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM event_pattern_mappings WHERE event_id = ? AND pattern_id = ?`, eventID, patternID)
	if err != nil {
		return errs.Storage("mappings.delete", err)
	}
	return nil
}

// LoadMappings returns every stored mapping ordered by creation time.
func (s *SQLiteMappingStore) LoadMappings(ctx context.Context) ([]model.EventPatternMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, pattern_id, mapping_score, mapping_type, confidence, created_at, updated_at, metadata
		FROM event_pattern_mappings
		ORDER BY created_at, event_id, pattern_id
	`)
	if err != nil {
		return nil, errs.Storage("mappings.load", err)
	}
	defer rows.Close()

	var out []model.EventPatternMapping
	for rows.Next() {
		var (
			m                    model.EventPatternMapping
			mappingType          string
			createdAt, updatedAt string
			metadata             sql.NullString
		)
		if err := rows.Scan(&m.EventID, &m.PatternID, &m.Score, &mappingType, &m.Confidence,
			&createdAt, &updatedAt, &metadata); err != nil {
			return nil, errs.Storage("mappings.load", err)
		}
		if m.Type, err = model.ParseMappingType(mappingType); err != nil {
			return nil, errs.Storage("mappings.load", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, errs.Storage("mappings.load", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("mappings.load", err)
	}
	return out, nil
}
