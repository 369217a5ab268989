package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/models"
)

//go:embed schema.sql
var schemaFS embed.FS

// MemoryDSN keeps the database in process memory; it is gone when the
// process exits.
const MemoryDSN = ":memory:"

// Store defines the methods our analysis store should implement
type Store interface {
	SaveAnalysis(ctx context.Context, a *models.SavedAnalysis) error
	GetAnalysis(ctx context.Context, id string) (*models.SavedAnalysis, error)
	ListAnalyses(ctx context.Context, limit int) ([]*models.SavedAnalysis, error)
	Close() error
}

// SQLiteDB implements the Store interface
type SQLiteDB struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteDB opens a SQLite database. Use MemoryDSN for session-only state.
func NewSQLiteDB(dsn string, logger *slog.Logger) (*SQLiteDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}
	logger.Debug("database schema initialized", slog.String("dsn", dsn))

	return &SQLiteDB{db: db, logger: logger}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

// SaveAnalysis appends a saved analysis. Saving the same ID twice is an error.
func (s *SQLiteDB) SaveAnalysis(ctx context.Context, a *models.SavedAnalysis) error {
	query := `
		INSERT INTO saved_analyses (
			id, created_at, crop, soil_type, ph, nitrogen, phosphorus, potassium,
			history, climate, image_preview, product, reasoning, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	soil := a.SoilData
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Timestamp.UTC().Format(time.RFC3339Nano),
		soil.Crop, soil.SoilType, soil.PH, soil.Nitrogen, soil.Phosphorus, soil.Potassium,
		soil.History, soil.Climate, a.ImagePreview,
		string(a.Result.ProductRecommendation), a.Result.Reasoning, a.Result.Confidence,
	)
	if err != nil {
		return fmt.Errorf("error saving analysis %s: %w", a.ID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, created_at, crop, soil_type, ph, nitrogen, phosphorus, potassium,
		history, climate, image_preview, product, reasoning, confidence
	FROM saved_analyses`

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*models.SavedAnalysis, error) {
	var a models.SavedAnalysis
	var createdAt, product string
	err := row.Scan(
		&a.ID, &createdAt,
		&a.SoilData.Crop, &a.SoilData.SoilType, &a.SoilData.PH,
		&a.SoilData.Nitrogen, &a.SoilData.Phosphorus, &a.SoilData.Potassium,
		&a.SoilData.History, &a.SoilData.Climate, &a.ImagePreview,
		&product, &a.Result.Reasoning, &a.Result.Confidence,
	)
	if err != nil {
		return nil, err
	}
	a.Result.ProductRecommendation = models.Product(product)

	a.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("error parsing timestamp of %s: %w", a.ID, err)
	}
	return &a, nil
}

// GetAnalysis retrieves one saved analysis
func (s *SQLiteDB) GetAnalysis(ctx context.Context, id string) (*models.SavedAnalysis, error) {
	a, err := scanAnalysis(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.CategoryNotFound, "database.get_analysis", "Análise não encontrada.", err)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnalyses returns saved analyses, most recently saved first. A limit of
// zero or less returns all of them.
func (s *SQLiteDB) ListAnalyses(ctx context.Context, limit int) ([]*models.SavedAnalysis, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing analyses: %w", err)
	}
	defer rows.Close()

	results := []*models.SavedAnalysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
