package searcher

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const testRelayURL = "https://relay.flashbots.test"

type blockResult struct {
	block *Block
	err   error
}

// fakeBlockSource returns results in order, repeating the last one.
type fakeBlockSource struct {
	mu      sync.Mutex
	number  uint64
	results []blockResult
	calls   int
}

func (f *fakeBlockSource) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.number, nil
}

func (f *fakeBlockSource) BlockByNumber(_ context.Context, _ uint64) (*Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	if idx < 0 {
		return nil, nil
	}
	return f.results[idx].block, f.results[idx].err
}

func (f *fakeBlockSource) setResults(results ...blockResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = results
	f.calls = 0
}

func (f *fakeBlockSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func numbered(n uint64, txs ...Transaction) *Block {
	block := &Block{Number: &n}
	for _, tx := range txs {
		block.Transactions = append(block.Transactions, tx.Hash())
	}
	return block
}

type journalEntry struct {
	record   SubmissionRecord
	outcome  bool
	resolved bool
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journalEntry
	err     error
}

func (j *fakeJournal) RecordSubmission(_ context.Context, record SubmissionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journalEntry{record: record})
	return j.err
}

func (j *fakeJournal) RecordOutcome(_ context.Context, record SubmissionRecord, included bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.entries {
		if j.entries[i].record.BundleHash == record.BundleHash && j.entries[i].record.Relay == record.Relay {
			j.entries[i].outcome = included
			j.entries[i].resolved = true
		}
	}
	return j.err
}

// recordedRequest is a request seen by a mocked relay.
type recordedRequest struct {
	body   []byte
	header http.Header
}

type mockRelay struct {
	transport *httpmock.MockTransport
	client    *http.Client

	mu       sync.Mutex
	requests map[string][]recordedRequest
}

func newMockRelay() *mockRelay {
	transport := httpmock.NewMockTransport()
	return &mockRelay{
		transport: transport,
		client:    &http.Client{Transport: transport},
		requests:  make(map[string][]recordedRequest),
	}
}

// respond registers a responder for url that records every request.
func (m *mockRelay) respond(t *testing.T, url string, status int, body string) {
	m.transport.RegisterResponder(http.MethodPost, url, func(req *http.Request) (*http.Response, error) {
		data, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		m.mu.Lock()
		m.requests[url] = append(m.requests[url], recordedRequest{body: data, header: req.Header.Clone()})
		m.mu.Unlock()
		return httpmock.NewStringResponse(status, body), nil
	})
}

func (m *mockRelay) fail(url string, err error) {
	m.transport.RegisterResponder(http.MethodPost, url, httpmock.NewErrorResponder(err))
}

func (m *mockRelay) relay(url string, signer Signer) *Relay {
	return NewRelay(url, signer, WithHTTPClient(m.client))
}

func (m *mockRelay) recorded(url string) []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRequest(nil), m.requests[url]...)
}

func testSigner(t *testing.T) *PrivateKeySigner {
	t.Helper()
	signer, err := NewPrivateKeySignerFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	return signer
}

func testBundle() BundleRequest {
	return NewBundleRequest().
		PushTransaction(RawTransaction([]byte{0x1})).
		PushRevertibleTransaction(RawTransaction([]byte{0x2})).
		SetBlock(2)
}
