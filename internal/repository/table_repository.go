package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"energy-forecast/internal/dataset"
	"energy-forecast/pkg/database"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// CatalogTable records the units tag, key and row count of every dataset table.
const CatalogTable = "dataset_catalog"

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// TableRepository stores datasets as SQL tables addressed by name. Tables are
// created on first upsert with the dataset key as primary key.
type TableRepository interface {
	Migrate(ctx context.Context, direction string) error

	Upsert(ctx context.Context, name string, t *dataset.Table, runID string) (*UpsertResult, error)
	Truncate(ctx context.Context, name string) error
	Read(ctx context.Context, name string, opts ReadOptions) (*dataset.Table, error)
	Exists(ctx context.Context, name string) (bool, error)

	Catalog(ctx context.Context) ([]CatalogEntry, error)
	CatalogEntry(ctx context.Context, name string) (*CatalogEntry, error)

	HealthCheck(ctx context.Context) error
}

// ReadOptions narrows a Read. Zero values read every column and row in
// ascending key order.
type ReadOptions struct {
	Columns    []string
	Start      *time.Time
	End        *time.Time
	Descending bool
	Limit      int
}

// UpsertResult reports one Upsert.
type UpsertResult struct {
	Table      string   `json:"table"`
	Rows       int      `json:"rows"`
	Written    int      `json:"written"`
	Failed     int      `json:"failed"`
	FailedKeys []string `json:"failed_keys,omitempty"`
	Fallback   bool     `json:"fallback"`
}

// CatalogEntry is one row of the dataset catalog.
type CatalogEntry struct {
	Name      string    `db:"name" json:"name"`
	KeyColumn string    `db:"key_column" json:"key_column"`
	Units     string    `db:"units" json:"units"`
	RowCount  int       `db:"row_count" json:"row_count"`
	RunID     string    `db:"run_id" json:"run_id"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// tableRepository implements TableRepository
type tableRepository struct {
	db        *database.DB
	logger    logging.Logger
	metrics   *metrics.Collector
	clock     clockwork.Clock
	batchSize int
}

// NewTableRepository creates a new table repository
func NewTableRepository(db *database.DB, logger logging.Logger, metricsCollector *metrics.Collector, clock clockwork.Clock, batchSize int) TableRepository {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &tableRepository{
		db:        db,
		logger:    logger,
		metrics:   metricsCollector,
		clock:     clock,
		batchSize: batchSize,
	}
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func validIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return &dataset.SchemaError{Table: name, Column: "", Message: fmt.Sprintf("invalid %s identifier %q", kind, name)}
	}
	return nil
}

// Migrate creates ("up") or drops ("down") the catalog table.
func (r *tableRepository) Migrate(ctx context.Context, direction string) error {
	switch direction {
	case "up":
		return r.ensureCatalog(ctx)
	case "down":
		if _, err := r.db.ExecContext(ctx, "drop_catalog", `DROP TABLE IF EXISTS `+CatalogTable); err != nil {
			return fmt.Errorf("failed to drop catalog: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown migration direction %q", direction)
}

func (r *tableRepository) ensureCatalog(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			key_column TEXT NOT NULL,
			units TEXT NOT NULL,
			row_count INTEGER NOT NULL DEFAULT 0,
			run_id TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		)`, CatalogTable)
	if _, err := r.db.ExecContext(ctx, "create_catalog", query); err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}
	return nil
}

// Upsert writes t into table name keyed on t.Key. Batches run in a
// transaction; a failing batch is retried row by row so only the offending
// rows are lost.
func (r *tableRepository) Upsert(ctx context.Context, name string, t *dataset.Table, runID string) (*UpsertResult, error) {
	result := &UpsertResult{Table: name}
	if err := validIdent("table", name); err != nil {
		return result, err
	}
	if t.Empty() {
		return result, nil
	}
	if !t.Has(t.Key) {
		return result, &dataset.SchemaError{Table: name, Column: t.Key, Message: "key column missing"}
	}
	cols := t.Columns()
	for _, c := range cols {
		if err := validIdent("column", c); err != nil {
			return result, err
		}
	}

	start := time.Now()
	defer func() {
		r.logger.Debug(ctx, "[UPSERT_DONE] Dataset upserted", logging.Fields{
			"table":       name,
			"rows":        result.Rows,
			"written":     result.Written,
			"failed":      result.Failed,
			"duration_ms": time.Since(start).Milliseconds(),
			"stage":       "UPSERT",
		})
	}()

	if err := r.ensureCatalog(ctx); err != nil {
		return result, err
	}
	if err := r.ensureTable(ctx, name, t); err != nil {
		return result, err
	}

	query := r.upsertQuery(name, t.Key, cols)
	result.Rows = t.Len()

	for lo := 0; lo < t.Len(); lo += r.batchSize {
		hi := min(lo+r.batchSize, t.Len())
		r.metrics.UpsertBatchSize.Observe(float64(hi - lo))

		if err := r.writeBatch(ctx, query, t, cols, lo, hi); err != nil {
			result.Fallback = true
			r.metrics.UpsertFallbackTotal.WithLabelValues(name).Inc()
			r.logger.Warn(ctx, "[UPSERT_FALLBACK] Batch failed, retrying row by row", logging.Fields{
				"table": name,
				"from":  lo,
				"to":    hi,
				"error": err.Error(),
				"stage": "UPSERT",
			})
			r.writeRows(ctx, query, t, cols, lo, hi, result)
			continue
		}
		result.Written += hi - lo
	}

	r.metrics.UpsertRowsTotal.WithLabelValues("written").Add(float64(result.Written))
	r.metrics.UpsertRowsTotal.WithLabelValues("failed").Add(float64(result.Failed))

	if err := r.recordCatalog(ctx, name, t, runID); err != nil {
		return result, err
	}
	if result.Written == 0 {
		return result, fmt.Errorf("no rows of %s could be written", name)
	}
	return result, nil
}

func (r *tableRepository) ensureTable(ctx context.Context, name string, t *dataset.Table) error {
	dialect := r.db.Dialect()
	sqlType := func(c *dataset.Column) string {
		if c.Kind == dataset.Number {
			return dialect.NumberType
		}
		return dialect.TextType
	}

	exists, err := r.db.TableExists(ctx, name)
	if err != nil {
		return err
	}

	if !exists {
		defs := make([]string, 0, len(t.Columns()))
		for _, c := range t.Columns() {
			def := quote(c) + " " + sqlType(t.Column(c))
			if c == t.Key {
				def = quote(c) + " " + dialect.TextType + " PRIMARY KEY"
			}
			defs = append(defs, def)
		}
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(name), strings.Join(defs, ", "))
		if _, err := r.db.ExecContext(ctx, "create_table", query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
		r.logger.Info(ctx, "[REPO_CREATE_TABLE] Table created", logging.Fields{
			"table":   name,
			"columns": len(defs),
			"key":     t.Key,
		})
		return nil
	}

	existing, err := r.db.Columns(ctx, name)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, c := range t.Columns() {
		if have[c] {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(name), quote(c), sqlType(t.Column(c)))
		if _, err := r.db.ExecContext(ctx, "add_column", query); err != nil {
			return fmt.Errorf("failed to add column %s to %s: %w", c, name, err)
		}
		r.logger.Info(ctx, "[REPO_ADD_COLUMN] Column added", logging.Fields{
			"table":  name,
			"column": c,
		})
	}
	return nil
}

func (r *tableRepository) upsertQuery(name, key string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	var updates []string
	for i, c := range cols {
		quoted[i] = quote(c)
		marks[i] = "?"
		if c != key {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quote(c), quote(c)))
		}
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		quote(name), strings.Join(quoted, ", "), strings.Join(marks, ", "), quote(key), conflict)
}

func rowArgs(t *dataset.Table, cols []string, i int) []interface{} {
	args := make([]interface{}, len(cols))
	for j, c := range cols {
		col := t.Column(c)
		switch {
		case col.IsMissing(i):
			args[j] = nil
		case col.Kind == dataset.Number:
			v := col.Float(i)
			if math.IsInf(v, 0) {
				args[j] = nil
			} else {
				args[j] = v
			}
		default:
			args[j] = col.Text(i)
		}
	}
	return args
}

func (r *tableRepository) writeBatch(ctx context.Context, query string, t *dataset.Table, cols []string, lo, hi int) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, r.db.Rebind(query))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := lo; i < hi; i++ {
		if t.Column(t.Key).IsMissing(i) {
			return fmt.Errorf("row %d has no %s", i, t.Key)
		}
		if _, err := stmt.ExecContext(ctx, rowArgs(t, cols, i)...); err != nil {
			return fmt.Errorf("failed to upsert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *tableRepository) writeRows(ctx context.Context, query string, t *dataset.Table, cols []string, lo, hi int, result *UpsertResult) {
	key := t.Column(t.Key)
	for i := lo; i < hi; i++ {
		if key.IsMissing(i) {
			result.Failed++
			result.FailedKeys = append(result.FailedKeys, fmt.Sprintf("row %d", i))
			continue
		}
		if _, err := r.db.ExecContext(ctx, "upsert_row", query, rowArgs(t, cols, i)...); err != nil {
			result.Failed++
			result.FailedKeys = append(result.FailedKeys, key.Text(i))
			continue
		}
		result.Written++
	}
	if result.Failed > 0 {
		r.logger.Warn(ctx, "[UPSERT_ROWS_FAILED] Rows rejected by the store", logging.Fields{
			"table":  result.Table,
			"failed": result.Failed,
			"keys":   result.FailedKeys,
			"stage":  "UPSERT",
		})
	}
}

func (r *tableRepository) recordCatalog(ctx context.Context, name string, t *dataset.Table, runID string) error {
	var count int
	if err := r.db.GetContext(ctx, "count_rows", &count, "SELECT COUNT(*) FROM "+quote(name)); err != nil {
		return fmt.Errorf("failed to count rows of %s: %w", name, err)
	}

	units := t.Units
	if units == "" {
		units = dataset.UnitsSource
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (name, key_column, units, row_count, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			key_column = excluded.key_column,
			units = excluded.units,
			row_count = excluded.row_count,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`, CatalogTable)
	if _, err := r.db.ExecContext(ctx, "upsert_catalog", query, name, t.Key, string(units), count, runID, r.clock.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update catalog for %s: %w", name, err)
	}

	r.metrics.DatasetRows.WithLabelValues(name).Set(float64(count))
	return nil
}

// Truncate removes every row of name. A missing table is not an error.
func (r *tableRepository) Truncate(ctx context.Context, name string) error {
	if err := validIdent("table", name); err != nil {
		return err
	}
	exists, err := r.db.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if _, err := r.db.ExecContext(ctx, "truncate_table", "DELETE FROM "+quote(name)); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", name, err)
	}
	if catalog, err := r.db.TableExists(ctx, CatalogTable); err == nil && catalog {
		query := fmt.Sprintf("UPDATE %s SET row_count = 0, updated_at = ? WHERE name = ?", CatalogTable)
		if _, err := r.db.ExecContext(ctx, "truncate_catalog", query, r.clock.Now().UTC(), name); err != nil {
			return fmt.Errorf("failed to reset catalog for %s: %w", name, err)
		}
	}
	r.metrics.DatasetRows.WithLabelValues(name).Set(0)

	r.logger.Info(ctx, "[REPO_TRUNCATE] Table truncated", logging.Fields{"table": name})
	return nil
}

// Read loads table name. The key column is parsed back to dates when every
// value is a date, and the units tag is restored from the catalog.
func (r *tableRepository) Read(ctx context.Context, name string, opts ReadOptions) (*dataset.Table, error) {
	if err := validIdent("table", name); err != nil {
		return nil, err
	}
	exists, err := r.db.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Resource: "table", ID: name}
	}

	available, err := r.db.Columns(ctx, name)
	if err != nil {
		return nil, err
	}
	key, units := available[0], dataset.UnitsSource
	entry, err := r.CatalogEntry(ctx, name)
	var notFound *NotFoundError
	switch {
	case err == nil:
		key, units = entry.KeyColumn, dataset.Units(entry.Units)
	case !errors.As(err, &notFound):
		return nil, err
	}

	cols := available
	if len(opts.Columns) > 0 {
		have := make(map[string]bool, len(available))
		for _, c := range available {
			have[c] = true
		}
		cols = []string{key}
		for _, c := range opts.Columns {
			if c != key && have[c] {
				cols = append(cols, c)
			}
		}
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1", strings.Join(quoted, ", "), quote(name))
	var args []interface{}
	if opts.Start != nil {
		query += fmt.Sprintf(" AND %s >= ?", quote(key))
		args = append(args, opts.Start.Format(time.DateOnly))
	}
	if opts.End != nil {
		query += fmt.Sprintf(" AND %s <= ?", quote(key))
		args = append(args, opts.End.Format(time.DateOnly))
	}
	query += " ORDER BY " + quote(key)
	if opts.Descending {
		query += " DESC"
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	values, err := r.scanColumns(ctx, query, len(cols), args)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	t := dataset.New(key)
	t.Units = units
	for i, c := range cols {
		if err := addScanned(t, c, values[i]); err != nil {
			return nil, err
		}
	}
	parseKeyDates(t, key)
	return t, nil
}

func (r *tableRepository) scanColumns(ctx context.Context, query string, width int, args []interface{}) ([][]interface{}, error) {
	rows, err := r.db.QueryContext(ctx, "read_table", query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([][]interface{}, width)
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		for i := range values {
			values[i] = append(values[i], row[i])
		}
	}
	return values, rows.Err()
}

// addScanned converts driver values into a typed column: numeric when every
// present value is a number, text otherwise.
func addScanned(t *dataset.Table, name string, vals []interface{}) error {
	numeric := true
	for _, v := range vals {
		switch v.(type) {
		case nil, float64, float32, int64, int32, int:
		default:
			numeric = false
		}
	}

	if numeric {
		nums := make([]float64, len(vals))
		for i, v := range vals {
			switch x := v.(type) {
			case float64:
				nums[i] = x
			case float32:
				nums[i] = float64(x)
			case int64:
				nums[i] = float64(x)
			case int32:
				nums[i] = float64(x)
			case int:
				nums[i] = float64(x)
			default:
				nums[i] = math.NaN()
			}
		}
		return t.AddNumber(name, nums)
	}

	texts := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case nil:
		case string:
			texts[i] = x
		case []byte:
			texts[i] = string(x)
		case time.Time:
			texts[i] = x.Format(time.DateOnly)
		default:
			texts[i] = fmt.Sprint(x)
		}
	}
	return t.AddText(name, texts)
}

func parseKeyDates(t *dataset.Table, key string) {
	c := t.Column(key)
	if c == nil || c.Kind != dataset.Text || c.Len() == 0 {
		return
	}
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			continue
		}
		if _, err := dataset.ParseDate(c.Text(i)); err != nil {
			return
		}
	}
	t.ToDate(key)
}

// Exists reports whether table name exists.
func (r *tableRepository) Exists(ctx context.Context, name string) (bool, error) {
	if err := validIdent("table", name); err != nil {
		return false, err
	}
	return r.db.TableExists(ctx, name)
}

// Catalog lists every catalog entry ordered by name. A store without a
// catalog yet has an empty one.
func (r *tableRepository) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	exists, err := r.db.TableExists(ctx, CatalogTable)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []CatalogEntry{}, nil
	}

	entries := []CatalogEntry{}
	query := fmt.Sprintf("SELECT name, key_column, units, row_count, run_id, updated_at FROM %s ORDER BY name", CatalogTable)
	if err := r.db.SelectContext(ctx, "list_catalog", &entries, query); err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	return entries, nil
}

// CatalogEntry returns the catalog entry of name.
func (r *tableRepository) CatalogEntry(ctx context.Context, name string) (*CatalogEntry, error) {
	exists, err := r.db.TableExists(ctx, CatalogTable)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Resource: "catalog_entry", ID: name}
	}

	var entry CatalogEntry
	query := fmt.Sprintf("SELECT name, key_column, units, row_count, run_id, updated_at FROM %s WHERE name = ?", CatalogTable)
	err = r.db.GetContext(ctx, "get_catalog_entry", &entry, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "catalog_entry", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog entry: %w", err)
	}
	return &entry, nil
}

// HealthCheck performs a repository health check
func (r *tableRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
