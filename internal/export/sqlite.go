package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/iq-power/internal/pipeline"
	"github.com/roman-kulish/iq-power/internal/power"
)

const defaultMaxBatchSize = 500

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    source       TEXT      NOT NULL,
    mode         TEXT      NOT NULL,
    window_size  INTEGER   NOT NULL,
    unit         TEXT      NOT NULL,
    precision    INTEGER   NOT NULL,
    sample_count INTEGER   NOT NULL,
    power_count  INTEGER   NOT NULL
);

CREATE TABLE IF NOT EXISTS windows (
    run_id INTEGER NOT NULL REFERENCES runs (id),
    idx    INTEGER NOT NULL,
    value  REAL,
    PRIMARY KEY (run_id, idx)
);`

	insertRunSQL = `
INSERT INTO runs (source,
                  mode,
                  window_size,
                  unit,
                  precision,
                  sample_count,
                  power_count)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertWindowsSQL = `
INSERT INTO windows (run_id,
                     idx,
                     value)
VALUES `

	selectLastRunSQL = `
SELECT
    id,
    source,
    mode,
    window_size,
    unit,
    precision,
    sample_count,
    power_count
FROM runs
ORDER BY id DESC
LIMIT 1`

	selectWindowsSQL = `
SELECT
    value
FROM windows
WHERE
    run_id = ?
ORDER BY idx`
)

type windowData struct {
	RunID int64
	Index int
	Value sql.NullFloat64
}

// SQLite writes the series into a fresh SQLite database: one row describing the
// run and one row per window. NaN values are stored as NULL.
type SQLite struct {
	// MaxBatchSize caps the number of windows inserted per statement.
	MaxBatchSize int
}

func (s *SQLite) Format() Format { return FormatSQLite }

// Export writes the series into a new database at path, replacing any existing file.
func (s *SQLite) Export(ctx context.Context, series *pipeline.Series, path string) error {
	batch := s.MaxBatchSize
	if batch <= 0 {
		batch = defaultMaxBatchSize
	}

	return writeAtomic(path, func(tmpPath string) (err error) {
		store := newSqliteStore(tmpPath)
		defer closeWithError(store, &err)

		runID, err := store.CreateRun(ctx, series)
		if err != nil {
			return err
		}
		return store.StoreWindows(ctx, runID, series.Values, batch)
	})
}

// ReadSeries loads the most recent run stored in the SQLite database at path.
func ReadSeries(ctx context.Context, path string) (series *pipeline.Series, err error) {
	store := newSqliteStore(path)
	defer closeWithError(store, &err)

	return store.LastRun(ctx)
}

// sqliteStore handles database operations
type sqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// sqliteDSN builds a URI filename for path. Characters with a meaning in URIs
// such as '?', '#' and '%' are percent-encoded.
func sqliteDSN(path, params string) string {
	return fmt.Sprintf("file:%s?%s", (&url.URL{Path: path}).EscapedPath(), params)
}

func newSqliteStore(dbPath string) *sqliteStore {
	return &sqliteStore{dbPath: dbPath}
}

func (s *sqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", sqliteDSN(s.dbPath, "_journal_mode=DELETE&_synchronous=FULL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *sqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", sqliteDSN(s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *sqliteStore) CreateRun(ctx context.Context, series *pipeline.Series) (runID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx,
		series.Source,
		string(series.Mode),
		series.WindowSize,
		string(series.Unit),
		series.Precision,
		series.SampleCount,
		series.PowerCount,
	)
	if err != nil {
		err = fmt.Errorf("inserting run: %w", err)
		return
	}

	runID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting run ID: %w", err)
	}
	return
}

// StoreWindows inserts all values of a run in a single transaction, maxBatch rows per statement.
func (s *sqliteStore) StoreWindows(ctx context.Context, runID int64, values []float64, maxBatch int) (err error) {
	if len(values) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	data := make([]windowData, len(values))
	for i, v := range values {
		data[i] = windowData{
			RunID: runID,
			Index: i,
			Value: sql.NullFloat64{
				Float64: v,
				Valid:   !math.IsNaN(v),
			},
		}
	}

	for chunk := range slices.Chunk(data, maxBatch) {
		var sb strings.Builder
		sb.WriteString(insertWindowsSQL)

		args := make([]any, 0, len(chunk)*3)
		for i, w := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?)")
			args = append(args, w.RunID, w.Index, w.Value)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("batch inserting windows: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *sqliteStore) LastRun(ctx context.Context) (series *pipeline.Series, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	var (
		runID int64
		mode  string
		unit  string
		sr    pipeline.Series
	)
	err = db.QueryRowContext(ctx, selectLastRunSQL).Scan(
		&runID, &sr.Source, &mode, &sr.WindowSize, &unit, &sr.Precision, &sr.SampleCount, &sr.PowerCount)
	if err != nil {
		err = fmt.Errorf("scanning run: %w", err)
		return
	}
	sr.Mode = power.Mode(mode)
	sr.Unit = pipeline.Unit(unit)

	rows, err := db.QueryContext(ctx, selectWindowsSQL, runID)
	if err != nil {
		err = fmt.Errorf("querying windows: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	sr.Values = make([]float64, 0)
	for rows.Next() {
		var v sql.NullFloat64
		if err = rows.Scan(&v); err != nil {
			err = fmt.Errorf("scanning window: %w", err)
			return
		}
		if v.Valid {
			sr.Values = append(sr.Values, v.Float64)
		} else {
			sr.Values = append(sr.Values, math.NaN())
		}
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating windows: %w", err)
		return
	}

	return &sr, nil
}

func (s *sqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) && *err == nil {
		*err = rErr
	}
}
