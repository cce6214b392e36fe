// Package sources persists scrape configurations in SQLite so the set
// of harvestable sources survives restarts and can be managed at
// runtime. The registry stays the in-process lookup surface; this
// store is where registry contents come from.
package sources

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pevans/newsreel/scrape"
)

// Custom errors for source operations
var (
	ErrSourceNotFound = errors.New("source not found")
	ErrDuplicateName  = errors.New("source with this name already exists")
)

// Store manages source configurations using SQLite.
type Store struct {
	db *sql.DB
}

// Source is one stored scrape configuration plus its lifecycle
// bookkeeping. Name and URL mirror the embedded config for querying.
type Source struct {
	ID                uuid.UUID            `json:"id"`
	Name              string               `json:"name"`
	URL               string               `json:"url"`
	Mode              scrape.Mode          `json:"mode"`
	EnabledAt         *time.Time           `json:"enabled_at,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	LastHarvestedAt   *time.Time           `json:"last_harvested_at,omitempty"`
	HarvestErrorCount int                  `json:"harvest_error_count"`
	LastError         *string              `json:"last_error,omitempty"`
	Config            *scrape.ScrapeConfig `json:"config"`
}

// IsEnabled returns true if the source is currently enabled.
func (s *Source) IsEnabled() bool {
	return s.EnabledAt != nil
}

// Update represents fields that can be updated on a source.
type Update struct {
	Config            *scrape.ScrapeConfig
	EnabledAt         *time.Time
	ClearEnabledAt    bool // Set to true to set enabled_at to NULL
	LastHarvestedAt   *time.Time
	HarvestErrorCount *int
	LastError         *string
	ClearLastError    bool // Set to true to set last_error to NULL
}

// Filter represents filtering options for listing sources.
type Filter struct {
	Mode    *scrape.Mode // Filter by fetch mode
	Enabled *bool        // Filter by enabled status
	Limit   int          // Pagination limit
	Offset  int          // Pagination offset
}

// NewStore creates a new source store with the given database path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the sources table if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		mode TEXT NOT NULL,
		enabled_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_harvested_at TEXT,
		harvest_error_count INTEGER DEFAULT 0,
		last_error TEXT,
		config TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new source from a validated scrape config. The
// source's name, URL, and mode come from the config itself.
func (s *Store) Create(cfg *scrape.ScrapeConfig, enabledAt *time.Time) (*Source, error) {
	if cfg == nil {
		return nil, errors.New("source config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}

	now := time.Now()

	source := &Source{
		ID:        uuid.New(),
		Name:      cfg.Name,
		URL:       cfg.URL,
		Mode:      cfg.Mode,
		EnabledAt: enabledAt,
		CreatedAt: now,
		UpdatedAt: now,
		Config:    cfg,
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		INSERT INTO sources (
			id, name, url, mode, enabled_at,
			created_at, updated_at, config
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		source.ID.String(),
		source.Name,
		source.URL,
		string(source.Mode),
		formatTime(source.EnabledAt),
		formatTime(&source.CreatedAt),
		formatTime(&source.UpdatedAt),
		string(configJSON),
	)
	if err != nil {
		// Check for duplicate name constraint violation
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "unique constraint") {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}

	return source, nil
}

const sourceColumns = `id, name, url, mode, enabled_at,
	created_at, updated_at, last_harvested_at,
	harvest_error_count, last_error, config`

// Get retrieves a source by ID.
func (s *Store) Get(id uuid.UUID) (*Source, error) {
	return s.getWhere("id = ?", id.String())
}

// GetByName retrieves a source by its unique name.
func (s *Store) GetByName(name string) (*Source, error) {
	return s.getWhere("name = ?", name)
}

func (s *Store) getWhere(where string, arg any) (*Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources WHERE " + where

	row := s.db.QueryRow(query, arg)
	source, err := scanSource(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	return source, nil
}

// List lists sources with optional filtering, newest first.
func (s *Store) List(filter Filter) ([]Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources"

	var whereClauses []string
	var args []any

	if filter.Mode != nil {
		whereClauses = append(whereClauses, "mode = ?")
		args = append(args, string(*filter.Mode))
	}

	if filter.Enabled != nil {
		if *filter.Enabled {
			whereClauses = append(whereClauses, "enabled_at IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "enabled_at IS NULL")
		}
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *source)
	}

	return sources, rows.Err()
}

// UpdateSource updates a source with the provided fields.
func (s *Store) UpdateSource(id uuid.UUID, update Update) error {
	// Build dynamic UPDATE query based on provided fields
	setClauses := []string{"updated_at = ?"}
	now := time.Now()
	args := []any{formatTime(&now)}

	if update.Config != nil {
		if err := update.Config.Validate(); err != nil {
			return fmt.Errorf("invalid source config: %w", err)
		}
		data, err := json.Marshal(update.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		setClauses = append(setClauses,
			"config = ?", "name = ?", "url = ?", "mode = ?")
		args = append(args,
			string(data), update.Config.Name, update.Config.URL, string(update.Config.Mode))
	}
	if update.ClearEnabledAt {
		setClauses = append(setClauses, "enabled_at = ?")
		args = append(args, nil)
	} else if update.EnabledAt != nil {
		setClauses = append(setClauses, "enabled_at = ?")
		args = append(args, formatTime(update.EnabledAt))
	}
	if update.LastHarvestedAt != nil {
		setClauses = append(setClauses, "last_harvested_at = ?")
		args = append(args, formatTime(update.LastHarvestedAt))
	}
	if update.HarvestErrorCount != nil {
		setClauses = append(setClauses, "harvest_error_count = ?")
		args = append(args, *update.HarvestErrorCount)
	}
	if update.ClearLastError {
		setClauses = append(setClauses, "last_error = ?")
		args = append(args, nil)
	} else if update.LastError != nil {
		setClauses = append(setClauses, "last_error = ?")
		args = append(args, *update.LastError)
	}

	// Add WHERE clause
	args = append(args, id.String())

	query := fmt.Sprintf("UPDATE sources SET %s WHERE id = ?",
		strings.Join(setClauses, ", "))

	result, err := s.db.Exec(query, args...)
	if err != nil {
		// Check for duplicate name constraint violation
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "unique constraint") {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to update source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSourceNotFound
	}

	return nil
}

// Delete deletes a source.
func (s *Store) Delete(id uuid.UUID) error {
	result, err := s.db.Exec("DELETE FROM sources WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSourceNotFound
	}

	return nil
}

// Seed registers every enabled stored source into a registry.
// Registration stops at the first failure so a broken store never
// half-populates a registry silently.
func (s *Store) Seed(reg *scrape.Registry) error {
	enabled := true
	stored, err := s.List(Filter{Enabled: &enabled})
	if err != nil {
		return err
	}

	for _, src := range stored {
		if src.Config == nil {
			return fmt.Errorf("source %s has no config", src.Name)
		}
		if err := reg.Register(src.Config); err != nil {
			return fmt.Errorf("failed to register source %s: %w", src.Name, err)
		}
	}
	return nil
}

// scanSource is a shared helper that parses SQL row data into a Source
// struct. It takes the row's Scan method so Get and List share one
// column layout.
func scanSource(scan func(dest ...any) error) (*Source, error) {
	var idStr, name, url, mode, createdAtStr, updatedAtStr, configJSON string
	var enabledAtStr, lastHarvestedAtStr, lastError sql.NullString
	var harvestErrorCount int

	err := scan(
		&idStr, &name, &url, &mode,
		&enabledAtStr, &createdAtStr, &updatedAtStr,
		&lastHarvestedAtStr, &harvestErrorCount, &lastError,
		&configJSON,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source ID: %w", err)
	}

	source := &Source{
		ID:                id,
		Name:              name,
		URL:               url,
		Mode:              scrape.Mode(mode),
		CreatedAt:         parseTime(createdAtStr),
		UpdatedAt:         parseTime(updatedAtStr),
		HarvestErrorCount: harvestErrorCount,
	}

	// Parse optional timestamps
	if enabledAtStr.Valid {
		t := parseTime(enabledAtStr.String)
		source.EnabledAt = &t
	}
	if lastHarvestedAtStr.Valid {
		t := parseTime(lastHarvestedAtStr.String)
		source.LastHarvestedAt = &t
	}

	if lastError.Valid {
		source.LastError = &lastError.String
	}

	var cfg scrape.ScrapeConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	source.Config = &cfg

	return source, nil
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	// Strip monotonic clock for consistent comparisons
	return t.Truncate(0)
}
