package searcher

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrSubmissionNotFound = errors.New("submission not found")

type DBSubmission struct {
	BundleHash  []byte       `db:"bundle_hash"`
	Relay       string       `db:"relay"`
	Block       int64        `db:"block"`
	Signer      []byte       `db:"signer"`
	TxHashes    []byte       `db:"tx_hashes"`
	SubmittedAt time.Time    `db:"submitted_at"`
	Included    sql.NullBool `db:"included"`
	ResolvedAt  sql.NullTime `db:"resolved_at"`
}

var insertSubmissionQuery = `
INSERT INTO bundle_submission (bundle_hash, relay, block, signer, tx_hashes, submitted_at)
VALUES (:bundle_hash, :relay, :block, :signer, :tx_hashes, :submitted_at)
ON CONFLICT (bundle_hash, relay) DO
UPDATE SET block = EXCLUDED.block, submitted_at = EXCLUDED.submitted_at`

var updateOutcomeQuery = `
UPDATE bundle_submission
SET included = :included, resolved_at = :resolved_at
WHERE bundle_hash = :bundle_hash AND relay = :relay`

var getSubmissionQuery = `
SELECT bundle_hash, relay, block, signer, tx_hashes, submitted_at, included, resolved_at
FROM bundle_submission
WHERE bundle_hash = $1 AND relay = $2`

// DBJournal is a Postgres backed Journal.
type DBJournal struct {
	db *sqlx.DB

	insertSubmission *sqlx.NamedStmt
	updateOutcome    *sqlx.NamedStmt
	getSubmission    *sqlx.Stmt
}

func NewDBJournal(postgresDSN string) (*DBJournal, error) {
	db, err := sqlx.Connect("postgres", postgresDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(20)

	return NewDBJournalFromDB(db)
}

func NewDBJournalFromDB(db *sqlx.DB) (*DBJournal, error) {
	insertSubmission, err := db.PrepareNamed(insertSubmissionQuery)
	if err != nil {
		return nil, err
	}
	updateOutcome, err := db.PrepareNamed(updateOutcomeQuery)
	if err != nil {
		return nil, err
	}
	getSubmission, err := db.Preparex(getSubmissionQuery)
	if err != nil {
		return nil, err
	}

	return &DBJournal{
		db:               db,
		insertSubmission: insertSubmission,
		updateOutcome:    updateOutcome,
		getSubmission:    getSubmission,
	}, nil
}

func (j *DBJournal) RecordSubmission(ctx context.Context, record SubmissionRecord) error {
	txHashes, err := json.Marshal(record.Transactions)
	if err != nil {
		return err
	}
	dbSubmission := DBSubmission{
		BundleHash:  record.BundleHash.Bytes(),
		Relay:       record.Relay,
		Block:       int64(record.Block),
		Signer:      record.Signer.Bytes(),
		TxHashes:    txHashes,
		SubmittedAt: record.SubmittedAt,
	}
	_, err = j.insertSubmission.ExecContext(ctx, dbSubmission)
	return err
}

func (j *DBJournal) RecordOutcome(ctx context.Context, record SubmissionRecord, included bool) error {
	dbSubmission := DBSubmission{
		BundleHash: record.BundleHash.Bytes(),
		Relay:      record.Relay,
		Included:   sql.NullBool{Bool: included, Valid: true},
		ResolvedAt: sql.NullTime{Time: time.Now(), Valid: true},
	}
	res, err := j.updateOutcome.ExecContext(ctx, dbSubmission)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// GetSubmission returns the stored submission of a bundle to a relay.
func (j *DBJournal) GetSubmission(ctx context.Context, bundleHash common.Hash, relay string) (*DBSubmission, error) {
	var dbSubmission DBSubmission
	err := j.getSubmission.GetContext(ctx, &dbSubmission, bundleHash.Bytes(), relay)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	} else if err != nil {
		return nil, err
	}
	return &dbSubmission, nil
}

func (j *DBJournal) Close() error {
	return j.db.Close()
}
