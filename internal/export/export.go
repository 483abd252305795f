// Package export serializes the medicine table to CSV and to a flat Prolog
// fact file.
package export

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xoity/medicinedb/internal/store"
	"github.com/xoity/medicinedb/models"

	_ "modernc.org/sqlite"
)

// CSVFileName is the fixed export target, written to the working directory.
const CSVFileName = "medicines.csv"

// CSV writes every medicine to CSVFileName with a header row, fields in
// declaration order. Returns the written path, or "" when the store is empty
// (no file is produced).
func CSV(ctx context.Context, s *store.Store) (string, error) {
	medicines, err := s.ListMedicines(ctx)
	if err != nil {
		return "", err
	}
	if len(medicines) == 0 {
		return "", nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	path := filepath.Join(wd, CSVFileName)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.MedicineFieldNames); err != nil {
		return "", err
	}
	for _, m := range medicines {
		record := []string{
			m.Name,
			m.Brand,
			strconv.FormatFloat(m.Price, 'f', -1, 64),
			m.Dosage,
			m.Form,
			strconv.FormatBool(m.OTC),
			m.Description,
			m.SideEffects,
			m.Category,
			m.DateAdded,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}

// Prolog reads the medicines table with a raw scan (no entity mapping) and
// writes one fact per row:
//
//	medicine('Name', 'Brand', Price, 'Dosage', 'Form', true|false, 'Description', 'SideEffects', 'Category').
//
// String fields are single-quoted with no escaping; a value containing a
// single quote produces a malformed fact. Known limitation, kept as-is.
func Prolog(ctx context.Context, dbPath, outPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT name, brand, price, dosage, form, otc, description, side_effects, category
		FROM medicines`)
	if err != nil {
		return fmt.Errorf("scan medicines: %w", err)
	}
	defer rows.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create prolog file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "% Prolog knowledge base for medicines"); err != nil {
		return err
	}
	for rows.Next() {
		var name, brand, dosage, form, description, sideEffects, category string
		var price float64
		var otc int
		if err := rows.Scan(&name, &brand, &price, &dosage, &form, &otc,
			&description, &sideEffects, &category); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		_, err := fmt.Fprintf(f, "medicine('%s', '%s', %v, '%s', '%s', %t, '%s', '%s', '%s').\n",
			name, brand, price, dosage, form, otc != 0, description, sideEffects, category)
		if err != nil {
			return err
		}
	}
	return rows.Err()
}
