// Package redis provides a submission journal backed by redis hashes.
package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashbots/searcher-client/searcher"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "searcher:submission:"

const (
	fieldBlock       = "block"
	fieldSigner      = "signer"
	fieldTxs         = "txs"
	fieldSubmittedAt = "submitted_at"
	fieldIncluded    = "included"
	fieldResolvedAt  = "resolved_at"
)

// Journal keeps one hash per (bundle hash, relay) that expires after expireDuration.
type Journal struct {
	client         *redis.Client
	expireDuration time.Duration
	keyPrefix      string
}

var _ searcher.Journal = (*Journal)(nil)

func NewJournal(client *redis.Client, expireDuration time.Duration, keyPrefix string) *Journal {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Journal{
		client:         client,
		expireDuration: expireDuration,
		keyPrefix:      keyPrefix,
	}
}

func (j *Journal) key(bundleHash common.Hash, relay string) string {
	return j.keyPrefix + bundleHash.Hex() + ":" + relay
}

func (j *Journal) RecordSubmission(ctx context.Context, record searcher.SubmissionRecord) error {
	key := j.key(record.BundleHash, record.Relay)
	txs := make([]string, len(record.Transactions))
	for i, h := range record.Transactions {
		txs[i] = h.Hex()
	}
	_, err := j.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldBlock, strconv.FormatUint(record.Block, 10),
			fieldSigner, record.Signer.Hex(),
			fieldTxs, strings.Join(txs, ","),
			fieldSubmittedAt, strconv.FormatInt(record.SubmittedAt.UnixMilli(), 10),
		)
		pipe.Expire(ctx, key, j.expireDuration)
		return nil
	})
	return err
}

func (j *Journal) RecordOutcome(ctx context.Context, record searcher.SubmissionRecord, included bool) error {
	key := j.key(record.BundleHash, record.Relay)
	exists, err := j.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return searcher.ErrSubmissionNotFound
	}
	return j.client.HSet(ctx, key,
		fieldIncluded, strconv.FormatBool(included),
		fieldResolvedAt, strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Err()
}

// Submission is a journal entry. Included is nil until the outcome is known.
type Submission struct {
	searcher.SubmissionRecord
	Included   *bool
	ResolvedAt time.Time
}

func (j *Journal) GetSubmission(ctx context.Context, bundleHash common.Hash, relay string) (*Submission, error) {
	fields, err := j.client.HGetAll(ctx, j.key(bundleHash, relay)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, searcher.ErrSubmissionNotFound
	}

	res := &Submission{SubmissionRecord: searcher.SubmissionRecord{
		BundleHash: bundleHash,
		Relay:      relay,
		Signer:     common.HexToAddress(fields[fieldSigner]),
	}}
	if res.Block, err = strconv.ParseUint(fields[fieldBlock], 10, 64); err != nil {
		return nil, err
	}
	if txs := fields[fieldTxs]; txs != "" {
		for _, h := range strings.Split(txs, ",") {
			res.Transactions = append(res.Transactions, common.HexToHash(h))
		}
	}
	if res.SubmittedAt, err = parseMillis(fields[fieldSubmittedAt]); err != nil {
		return nil, err
	}
	if v, ok := fields[fieldIncluded]; ok {
		included, err := strconv.ParseBool(v)
		if err != nil {
			return nil, err
		}
		res.Included = &included
		if res.ResolvedAt, err = parseMillis(fields[fieldResolvedAt]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
