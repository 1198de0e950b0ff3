package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"bandersnatch/data"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrEmpty is returned when a collection holds no documents.
var ErrEmpty = errors.New("collection is empty")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Database is a collection of JSON documents in one SQLite table, plus the
// training log kept next to it.
type Database struct {
	db         *sql.DB
	collection string
	logger     *zap.Logger
	generator  *data.MonsterGenerator
	printer    *message.Printer
}

type Option func(*Database)

// WithGenerator replaces the monster generator used by Seed.
func WithGenerator(generator *data.MonsterGenerator) Option {
	return func(d *Database) { d.generator = generator }
}

// Open opens or creates the database at path. The collection name becomes a
// table name and must be a plain identifier.
func Open(path, collection string, logger *zap.Logger, opts ...Option) (*Database, error) {
	if !identifier.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	conn.SetMaxOpenConns(1)

	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        document TEXT NOT NULL
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        accuracy REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `, collection)
	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}

	d := &Database{
		db:         conn,
		collection: collection,
		logger:     logger,
		generator:  data.NewMonsterGenerator(time.Now().UnixNano()),
		printer:    message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Seed inserts n generated monsters in a single transaction.
func (d *Database) Seed(n int) error {
	if n <= 0 {
		return fmt.Errorf("seed count must be positive, got %d", n)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (document) VALUES (?)", d.collection))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, monster := range d.generator.Generate(n) {
		document, err := json.Marshal(monster)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(string(document)); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	d.logger.Info("collection seeded",
		zap.String("collection", d.collection),
		zap.String("documents", d.printer.Sprintf("%d", n)),
	)
	return nil
}

// Reset deletes every document and reports how many were removed.
func (d *Database) Reset() (int64, error) {
	result, err := d.db.Exec(fmt.Sprintf("DELETE FROM %s", d.collection))
	if err != nil {
		return 0, err
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	d.logger.Info("collection reset",
		zap.String("collection", d.collection),
		zap.String("documents", d.printer.Sprintf("%d", removed)),
	)
	return removed, nil
}

func (d *Database) Count() (int, error) {
	var count int
	err := d.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", d.collection)).Scan(&count)
	return count, err
}

// Table loads every document in insertion order. Known monster fields come
// first, any other keys follow in sorted order.
func (d *Database) Table() (*data.Table, error) {
	rows, err := d.db.Query(fmt.Sprintf("SELECT document FROM %s ORDER BY id", d.collection))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []data.Record
	extra := make(map[string]struct{})
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		record, err := decodeDocument(document)
		if err != nil {
			return nil, err
		}
		for key := range record {
			extra[key] = struct{}{}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	columns := make([]string, 0, len(extra))
	for _, column := range data.MonsterColumns {
		if _, ok := extra[column]; ok {
			columns = append(columns, column)
			delete(extra, column)
		}
	}
	rest := make([]string, 0, len(extra))
	for column := range extra {
		rest = append(rest, column)
	}
	sort.Strings(rest)
	columns = append(columns, rest...)

	return data.NewTable(columns, records), nil
}

func decodeDocument(document string) (data.Record, error) {
	var record data.Record
	if err := json.Unmarshal([]byte(document), &record); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return record, nil
}

// TrainingLog records one fitted model. Accuracy is nil when no hold-out set
// was scored.
type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

func (d *Database) SaveTrainingLog(log TrainingLog) error {
	_, err := d.db.Exec(`
        INSERT INTO training_log (model_name, accuracy, trained_at, data_points)
        VALUES (?, ?, ?, ?)`,
		log.ModelName, log.Accuracy, log.TrainedAt.UTC(), log.DataPoints)
	return err
}

// LoadTrainingLog returns the newest entries first.
func (d *Database) LoadTrainingLog(limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`
        SELECT model_name, accuracy, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var accuracy sql.NullFloat64
		if err := rows.Scan(&log.ModelName, &accuracy, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		if accuracy.Valid {
			log.Accuracy = &accuracy.Float64
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
