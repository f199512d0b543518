package searcher

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SubmissionRecord describes one bundle acknowledged by one relay.
type SubmissionRecord struct {
	BundleHash   common.Hash
	Relay        string
	Block        uint64
	Signer       common.Address
	Transactions []common.Hash
	SubmittedAt  time.Time
}

// Journal stores submissions and their inclusion outcome.
// Journal errors are logged by the caller and never fail a submission.
type Journal interface {
	RecordSubmission(ctx context.Context, record SubmissionRecord) error
	RecordOutcome(ctx context.Context, record SubmissionRecord, included bool) error
}
