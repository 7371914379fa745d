// Package store persists reference data, raw intake records and dedup
// results in PostgreSQL
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/intake-dedup/internal/dedup"
	"github.com/intake-dedup/internal/match"
	"github.com/intake-dedup/internal/patient"
	"github.com/intake-dedup/internal/reference"
)

// ErrRunNotFound is returned for an unknown run id
var ErrRunNotFound = errors.New("dedup run not found")

// Store is the PostgreSQL repository of the dedup service
type Store struct {
	db *sqlx.DB
}

// New wraps an open database
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates any missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// LoadReference builds the reference table from state_postcode
func (s *Store) LoadReference(ctx context.Context) (*reference.Table, error) {
	var intervals []reference.Interval
	err := s.db.SelectContext(ctx, &intervals, `
		SELECT state, postcode_min_range, postcode_max_range
		FROM state_postcode
		ORDER BY state, postcode_min_range
	`)
	if err != nil {
		return nil, fmt.Errorf("load reference: %w", err)
	}

	table, err := reference.NewTable(intervals)
	if err != nil {
		return nil, fmt.Errorf("load reference: %w", err)
	}
	return table, nil
}

// ReplaceReference swaps the contents of state_postcode for intervals in
// one transaction
func (s *Store) ReplaceReference(ctx context.Context, intervals []reference.Interval) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM state_postcode`); err != nil {
			return fmt.Errorf("clear reference: %w", err)
		}
		if len(intervals) == 0 {
			return nil
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO state_postcode (state, postcode_min_range, postcode_max_range)
			VALUES (:state, :postcode_min_range, :postcode_max_range)
		`, intervals)
		if err != nil {
			return fmt.Errorf("insert reference: %w", err)
		}
		return nil
	})
}

// intakeRow is the patient_intake shape; NULL columns map to zero values
// and nil pointers on the patient side
type intakeRow struct {
	PatientID    string         `db:"patient_id"`
	GivenName    sql.NullString `db:"given_name"`
	Surname      sql.NullString `db:"surname"`
	DateOfBirth  sql.NullString `db:"date_of_birth"`
	StreetNumber sql.NullInt64  `db:"street_number"`
	Address1     sql.NullString `db:"address_1"`
	Address2     sql.NullString `db:"address_2"`
	Suburb       sql.NullString `db:"suburb"`
	Postcode     sql.NullString `db:"postcode"`
	State        sql.NullString `db:"state"`
	Age          sql.NullInt64  `db:"age"`
	PhoneNumber  sql.NullString `db:"phone_number"`
}

func (r intakeRow) record() patient.Record {
	return patient.Record{
		PatientID:      r.PatientID,
		GivenName:      r.GivenName.String,
		Surname:        r.Surname.String,
		RawDateOfBirth: r.DateOfBirth.String,
		StreetNumber:   nullableInt(r.StreetNumber),
		Address1:       r.Address1.String,
		Address2:       r.Address2.String,
		Suburb:         r.Suburb.String,
		Postcode:       r.Postcode.String,
		State:          r.State.String,
		Age:            nullableInt(r.Age),
		PhoneNumber:    r.PhoneNumber.String,
	}
}

func rowFromRecord(r patient.Record) intakeRow {
	raw := r.RawDateOfBirth
	if raw == "" {
		raw = r.DateOfBirthString()
	}
	return intakeRow{
		PatientID:    r.PatientID,
		GivenName:    nullString(r.GivenName),
		Surname:      nullString(r.Surname),
		DateOfBirth:  nullString(raw),
		StreetNumber: nullInt(r.StreetNumber),
		Address1:     nullString(r.Address1),
		Address2:     nullString(r.Address2),
		Suburb:       nullString(r.Suburb),
		Postcode:     nullString(r.Postcode),
		State:        nullString(r.State),
		Age:          nullInt(r.Age),
		PhoneNumber:  nullString(r.PhoneNumber),
	}
}

// LoadRecords reads every raw intake record in load order
func (s *Store) LoadRecords(ctx context.Context) ([]patient.Record, error) {
	var rows []intakeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT patient_id, given_name, surname, date_of_birth, street_number,
		       address_1, address_2, suburb, postcode, state, age, phone_number
		FROM patient_intake
		ORDER BY intake_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	records := make([]patient.Record, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return records, nil
}

// InsertRecords appends raw intake records. Duplicate patient ids are kept:
// the sanitizer decides what to do with them.
func (s *Store) InsertRecords(ctx context.Context, records []patient.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	const batchSize = 1000
	inserted := 0
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for start := 0; start < len(records); start += batchSize {
			end := min(start+batchSize, len(records))
			rows := make([]intakeRow, 0, end-start)
			for _, r := range records[start:end] {
				rows = append(rows, rowFromRecord(r))
			}
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO patient_intake (
					patient_id, given_name, surname, date_of_birth, street_number,
					address_1, address_2, suburb, postcode, state, age, phone_number
				) VALUES (
					:patient_id, :given_name, :surname, :date_of_birth, :street_number,
					:address_1, :address_2, :suburb, :postcode, :state, :age, :phone_number
				)
			`, rows)
			if err != nil {
				return fmt.Errorf("insert records %d-%d: %w", start, end, err)
			}
			inserted += len(rows)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Run is the header row of one persisted dedup run
type Run struct {
	ID                  uuid.UUID `db:"run_id" json:"run_id"`
	StartedAt           time.Time `db:"started_at" json:"started_at"`
	FinishedAt          time.Time `db:"finished_at" json:"finished_at"`
	RecordsIn           int       `db:"records_in" json:"records_in"`
	RecordsDropped      int       `db:"records_dropped" json:"records_dropped"`
	RecordsOut          int       `db:"records_out" json:"records_out"`
	Matches             int       `db:"matches" json:"matches"`
	Clusters            int       `db:"clusters" json:"clusters"`
	MatchThreshold      float64   `db:"match_threshold" json:"match_threshold"`
	SimilarityThreshold float64   `db:"similarity_threshold" json:"similarity_threshold"`
}

// RunOf builds the header of a finished pipeline run
func RunOf(stats dedup.Stats, thresholds match.Thresholds, finished time.Time) Run {
	return Run{
		StartedAt:           finished.Add(-stats.Duration),
		FinishedAt:          finished,
		RecordsIn:           stats.RecordsIn,
		RecordsDropped:      stats.Dropped,
		RecordsOut:          stats.Records,
		Matches:             stats.Edges,
		Clusters:            stats.Clusters,
		MatchThreshold:      thresholds.Match,
		SimilarityThreshold: thresholds.Similarity,
	}
}

// SaveRun stores run and the dedup id of every record under a new run id,
// which it returns. run.ID is ignored.
func (s *Store) SaveRun(ctx context.Context, run Run, records []patient.Record) (uuid.UUID, error) {
	run.ID = uuid.New()

	patientIDs := make([]string, len(records))
	dedupIDs := make([]string, len(records))
	for i, r := range records {
		if r.DedupID == "" {
			return uuid.Nil, fmt.Errorf("save run: record %s has no dedup id", r.PatientID)
		}
		patientIDs[i] = r.PatientID
		dedupIDs[i] = r.DedupID
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO dedup_run (
				run_id, started_at, finished_at, records_in, records_dropped,
				records_out, matches, clusters, match_threshold, similarity_threshold
			) VALUES (
				:run_id, :started_at, :finished_at, :records_in, :records_dropped,
				:records_out, :matches, :clusters, :match_threshold, :similarity_threshold
			)
		`, run)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO patient_dedup (run_id, patient_id, dedup_id)
			SELECT $1::uuid, p, d FROM unnest($2::text[], $3::text[]) AS t(p, d)
		`, run.ID, pq.Array(patientIDs), pq.Array(dedupIDs))
		if err != nil {
			return fmt.Errorf("insert assignments: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("save run: %w", err)
	}
	return run.ID, nil
}

// GetRun returns the header of a stored run
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT * FROM dedup_run WHERE run_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// LatestRun returns the most recently finished run
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT * FROM dedup_run ORDER BY finished_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return &run, nil
}

// Assignments returns patient id -> dedup id for a stored run
func (s *Store) Assignments(ctx context.Context, id uuid.UUID) (map[string]string, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT patient_id, dedup_id FROM patient_dedup WHERE run_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("assignments %s: %w", id, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var patientID, dedupID string
		if err := rows.Scan(&patientID, &dedupID); err != nil {
			return nil, fmt.Errorf("assignments %s: %w", id, err)
		}
		out[patientID] = dedupID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignments %s: %w", id, err)
	}
	if len(out) == 0 {
		if _, err := s.GetRun(ctx, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullableInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
