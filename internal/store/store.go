// Package store persists Medicine and Insight records in a local SQLite file.
//
// The database is opened and closed per operation: there is exactly one writer
// (the UI action currently awaited) and no concurrent access, so no pooled
// connection or cross-statement transaction is held. Records are insert-only;
// there is no update or delete path.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xoity/medicinedb/models"

	_ "modernc.org/sqlite"
)

type Store struct {
	Path string
}

func New(path string) *Store {
	return &Store{Path: path}
}

const schema = `
CREATE TABLE IF NOT EXISTS medicines (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	brand TEXT NOT NULL,
	price REAL NOT NULL,
	dosage TEXT NOT NULL,
	form TEXT NOT NULL,
	otc INTEGER NOT NULL,
	description TEXT NOT NULL,
	side_effects TEXT NOT NULL,
	category TEXT NOT NULL,
	date_added TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS insights (
	id INTEGER PRIMARY KEY,
	insight TEXT NOT NULL,
	category TEXT NOT NULL,
	date_created TEXT NOT NULL
);
`

func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", s.Path, err)
	}
	return db, nil
}

// Init ensures both tables exist. Safe to call against an existing populated
// file; existing rows are untouched. Schema migration is not supported.
func (s *Store) Init(ctx context.Context) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertMedicine appends one row. Duplicates are not checked.
func (s *Store) InsertMedicine(ctx context.Context, m models.Medicine) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	otc := 0
	if m.OTC {
		otc = 1
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO medicines
		(name, brand, price, dosage, form, otc, description, side_effects, category, date_added)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.Brand, m.Price, m.Dosage, m.Form, otc,
		m.Description, m.SideEffects, m.Category, m.DateAdded,
	)
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	return nil
}

// ListMedicines returns every medicine row. Ordering is whatever the engine
// yields; filtering and sorting are the caller's job.
func (s *Store) ListMedicines(ctx context.Context) ([]models.Medicine, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT name, brand, price, dosage, form, otc, description, side_effects, category, date_added
		FROM medicines`)
	if err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}
	defer rows.Close()

	var out []models.Medicine
	for rows.Next() {
		var m models.Medicine
		var otc int
		if err := rows.Scan(&m.Name, &m.Brand, &m.Price, &m.Dosage, &m.Form, &otc,
			&m.Description, &m.SideEffects, &m.Category, &m.DateAdded); err != nil {
			return nil, fmt.Errorf("scan medicine: %w", err)
		}
		m.OTC = otc != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertInsight appends one insight row.
func (s *Store) InsertInsight(ctx context.Context, in models.Insight) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`INSERT INTO insights (insight, category, date_created) VALUES (?, ?, ?)`,
		in.Insight, in.Category, in.DateCreated,
	)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

// ListInsights returns every insight row.
func (s *Store) ListInsights(ctx context.Context) ([]models.Insight, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT insight, category, date_created FROM insights`)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var out []models.Insight
	for rows.Next() {
		var in models.Insight
		if err := rows.Scan(&in.Insight, &in.Category, &in.DateCreated); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
