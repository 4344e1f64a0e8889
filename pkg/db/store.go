package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/japaniel/typohmm/pkg/hmm"
)

// ErrModelNotFound is returned when no model with the requested name is stored.
var ErrModelNotFound = errors.New("db: model not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// SaveModel stores m under name, replacing the tables of any model with the
// same name. Correction history of a replaced model is kept. The whole write
// happens in one transaction.
func SaveModel(ctx context.Context, conn *sql.DB, name string, m *hmm.Model, records int) (int64, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, fmt.Errorf("model name must be non-empty")
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	var id int64
	err = tx.QueryRowContext(ctx, `INSERT INTO models (name, record_count) VALUES (?, ?)
			  ON CONFLICT(name) DO UPDATE SET
			    record_count = excluded.record_count,
			    created_at = CURRENT_TIMESTAMP
			  RETURNING id`, trimmed, records).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert model: %w", err)
	}

	for _, q := range []string{`DELETE FROM counts WHERE model_id = ?`, `DELETE FROM contexts WHERE model_id = ?`} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return 0, fmt.Errorf("clear model %d: %w", id, err)
		}
	}

	if err := writeTable(ctx, tx, id, KindEmission, m.Emissions); err != nil {
		return 0, err
	}
	if err := writeTable(ctx, tx, id, KindTransition, m.Transitions); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit model %q: %w", trimmed, err)
	}
	return id, nil
}

func writeTable(ctx context.Context, tx *sql.Tx, modelID int64, kind string, t *hmm.Table) error {
	ctxStmt, err := tx.PrepareContext(ctx, `INSERT INTO contexts (model_id, kind, ordinal, context, total) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ctxStmt.Close()
	cntStmt, err := tx.PrepareContext(ctx, `INSERT INTO counts (model_id, kind, context, ordinal, event, count) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer cntStmt.Close()

	for i, c := range t.Contexts() {
		if _, err := ctxStmt.ExecContext(ctx, modelID, kind, i, c, t.Total(c)); err != nil {
			return fmt.Errorf("insert %s context %q: %w", kind, c, err)
		}
		for j, ev := range t.Counts(c).Events() {
			if _, err := cntStmt.ExecContext(ctx, modelID, kind, c, j, ev, t.Count(c, ev)); err != nil {
				return fmt.Errorf("insert %s count %q/%q: %w", kind, c, ev, err)
			}
		}
	}
	return nil
}

// LoadModel reads the model stored under name and returns it with its id.
// Contexts and events come back in the order they were first counted, so a
// decoder built from the loaded model iterates states exactly as the original.
func LoadModel(db DBExecutor, name string) (*hmm.Model, int64, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM models WHERE name = ?`, strings.TrimSpace(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return nil, 0, err
	}

	em, err := readTable(db, id, KindEmission)
	if err != nil {
		return nil, 0, err
	}
	tr, err := readTable(db, id, KindTransition)
	if err != nil {
		return nil, 0, err
	}
	return &hmm.Model{Emissions: em, Transitions: tr}, id, nil
}

func readTable(db DBExecutor, modelID int64, kind string) (*hmm.Table, error) {
	totals := make(map[string]int)
	rows, err := db.Query(`SELECT context, total FROM contexts WHERE model_id = ? AND kind = ? ORDER BY ordinal`, modelID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c string
		var total int
		if err := rows.Scan(&c, &total); err != nil {
			return nil, err
		}
		totals[c] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	t := hmm.NewTable()
	rows2, err := db.Query(`SELECT c.context, c.event, c.count FROM counts c
		JOIN contexts x ON x.model_id = c.model_id AND x.kind = c.kind AND x.context = c.context
		WHERE c.model_id = ? AND c.kind = ?
		ORDER BY x.ordinal, c.ordinal`, modelID, kind)
	if err != nil {
		return nil, err
	}
	defer rows2.Close()
	for rows2.Next() {
		var c, ev string
		var n int
		if err := rows2.Scan(&c, &ev, &n); err != nil {
			return nil, err
		}
		t.Add(c, ev, n)
	}
	if err := rows2.Err(); err != nil {
		return nil, err
	}

	if t.Len() != len(totals) {
		return nil, fmt.Errorf("model %d: %s table has %d contexts with counts, %d stored", modelID, kind, t.Len(), len(totals))
	}
	for c, total := range totals {
		if t.Total(c) != total {
			return nil, fmt.Errorf("model %d: %s context %q: stored %s %d, counted %d", modelID, kind, c, hmm.CountKey, total, t.Total(c))
		}
	}
	if err := hmm.CheckConsistency(t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListModels returns all stored models ordered by name.
func ListModels(db DBExecutor) ([]ModelInfo, error) {
	rows, err := db.Query(`SELECT id, name, record_count, created_at FROM models ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModelInfo
	for rows.Next() {
		var m ModelInfo
		if err := rows.Scan(&m.ID, &m.Name, &m.RecordCount, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordCorrection logs that typed was decoded as decoded with the given model.
func RecordCorrection(db DBExecutor, modelID int64, typed, decoded, source string) error {
	if modelID <= 0 {
		return fmt.Errorf("modelID must be positive")
	}
	_, err := db.Exec(`INSERT INTO corrections (model_id, typed, decoded, source) VALUES (?, ?, ?, ?)`,
		modelID, typed, decoded, nullableString(source))
	return err
}

// GetCorrections returns up to limit of the most recent corrections for a model.
func GetCorrections(db DBExecutor, modelID int64, limit int) ([]Correction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT id, model_id, typed, decoded, source, created_at FROM corrections
		WHERE model_id = ? ORDER BY id DESC LIMIT ?`, modelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Correction
	for rows.Next() {
		var c Correction
		var src sql.NullString
		if err := rows.Scan(&c.ID, &c.ModelID, &c.Typed, &c.Decoded, &src, &c.CreatedAt); err != nil {
			return nil, err
		}
		if src.Valid {
			c.Source = src.String
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// nullableString returns nil for "" else the value.
func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
