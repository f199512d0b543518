package searcher

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

var ErrEmptyTransaction = errors.New("transaction is empty")

// Transaction is either a signed go-ethereum transaction or its raw signed encoding.
type Transaction struct {
	signed *types.Transaction
	raw    hexutil.Bytes
}

func SignedTransaction(tx *types.Transaction) Transaction {
	return Transaction{signed: tx}
}

func RawTransaction(raw []byte) Transaction {
	return Transaction{raw: slices.Clone(raw)}
}

func (t Transaction) MarshalBinary() ([]byte, error) {
	if t.signed != nil {
		return t.signed.MarshalBinary()
	}
	if t.raw == nil {
		return nil, ErrEmptyTransaction
	}
	return slices.Clone(t.raw), nil
}

// Hash is keccak256 of the canonical encoding.
func (t Transaction) Hash() common.Hash {
	if t.signed != nil {
		return t.signed.Hash()
	}
	return crypto.Keccak256Hash(t.raw)
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	data, err := t.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Bytes(data))
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw hexutil.Bytes
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Transaction{raw: raw}
	return nil
}

// BundleRequest is an immutable bundle builder. Every setter returns a modified copy.
type BundleRequest struct {
	txs               []Transaction
	revertingTxHashes []common.Hash

	block        *uint64
	minTimestamp *uint64
	maxTimestamp *uint64

	simulationBlock     *uint64
	simulationTimestamp *uint64
	simulationBaseFee   *uint64
}

func NewBundleRequest(txs ...Transaction) BundleRequest {
	return BundleRequest{txs: slices.Clone(txs)}
}

func (b BundleRequest) PushTransaction(tx Transaction) BundleRequest {
	b.txs = append(slices.Clip(b.txs), tx)
	return b
}

// PushRevertibleTransaction adds the transaction and allows it to revert without failing the bundle.
func (b BundleRequest) PushRevertibleTransaction(tx Transaction) BundleRequest {
	b.txs = append(slices.Clip(b.txs), tx)
	b.revertingTxHashes = append(slices.Clip(b.revertingTxHashes), tx.Hash())
	return b
}

func (b BundleRequest) Transactions() []Transaction {
	return slices.Clone(b.txs)
}

func (b BundleRequest) TransactionHashes() []common.Hash {
	hashes := make([]common.Hash, len(b.txs))
	for i, tx := range b.txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}

func (b BundleRequest) RevertingTxHashes() []common.Hash {
	return slices.Clone(b.revertingTxHashes)
}

// BundleHash is keccak256 over concatenated transaction hashes. A single transaction bundle
// has the hash of its transaction.
func (b BundleRequest) BundleHash() common.Hash {
	hashes := b.TransactionHashes()
	if len(hashes) == 1 {
		return hashes[0]
	}
	hasher := sha3.NewLegacyKeccak256()
	for _, h := range hashes {
		hasher.Write(h[:])
	}
	return common.BytesToHash(hasher.Sum(nil))
}

func (b BundleRequest) Block() (uint64, bool) { return get(b.block) }

func (b BundleRequest) SetBlock(block uint64) BundleRequest {
	b.block = &block
	return b
}

func (b BundleRequest) MinTimestamp() (uint64, bool) { return get(b.minTimestamp) }

func (b BundleRequest) SetMinTimestamp(ts uint64) BundleRequest {
	b.minTimestamp = &ts
	return b
}

func (b BundleRequest) MaxTimestamp() (uint64, bool) { return get(b.maxTimestamp) }

func (b BundleRequest) SetMaxTimestamp(ts uint64) BundleRequest {
	b.maxTimestamp = &ts
	return b
}

// SimulationBlock is the state block the bundle is simulated on top of.
func (b BundleRequest) SimulationBlock() (uint64, bool) { return get(b.simulationBlock) }

func (b BundleRequest) SetSimulationBlock(block uint64) BundleRequest {
	b.simulationBlock = &block
	return b
}

func (b BundleRequest) SimulationTimestamp() (uint64, bool) { return get(b.simulationTimestamp) }

func (b BundleRequest) SetSimulationTimestamp(ts uint64) BundleRequest {
	b.simulationTimestamp = &ts
	return b
}

func (b BundleRequest) SimulationBaseFee() (uint64, bool) { return get(b.simulationBaseFee) }

func (b BundleRequest) SetSimulationBaseFee(fee uint64) BundleRequest {
	b.simulationBaseFee = &fee
	return b
}

func get(v *uint64) (uint64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// bundleRequestJSON fixes the key order of the wire format.
type bundleRequestJSON struct {
	Txs               []Transaction   `json:"txs"`
	RevertingTxHashes []common.Hash   `json:"revertingTxHashes,omitempty"`
	BlockNumber       *hexutil.Uint64 `json:"blockNumber,omitempty"`
	MinTimestamp      *uint64         `json:"minTimestamp,omitempty"`
	MaxTimestamp      *uint64         `json:"maxTimestamp,omitempty"`
	StateBlockNumber  *hexutil.Uint64 `json:"stateBlockNumber,omitempty"`
	Timestamp         *uint64         `json:"timestamp,omitempty"`
	BaseFee           *uint64         `json:"baseFee,omitempty"`
}

func (b BundleRequest) MarshalJSON() ([]byte, error) {
	txs := b.txs
	if txs == nil {
		txs = []Transaction{}
	}
	return json.Marshal(bundleRequestJSON{
		Txs:               txs,
		RevertingTxHashes: b.revertingTxHashes,
		BlockNumber:       (*hexutil.Uint64)(b.block),
		MinTimestamp:      b.minTimestamp,
		MaxTimestamp:      b.maxTimestamp,
		StateBlockNumber:  (*hexutil.Uint64)(b.simulationBlock),
		Timestamp:         b.simulationTimestamp,
		BaseFee:           b.simulationBaseFee,
	})
}

func (b *BundleRequest) UnmarshalJSON(data []byte) error {
	var wire bundleRequestJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*b = BundleRequest{
		txs:                 wire.Txs,
		revertingTxHashes:   wire.RevertingTxHashes,
		block:               (*uint64)(wire.BlockNumber),
		minTimestamp:        wire.MinTimestamp,
		maxTimestamp:        wire.MaxTimestamp,
		simulationBlock:     (*uint64)(wire.StateBlockNumber),
		simulationTimestamp: wire.Timestamp,
		simulationBaseFee:   wire.BaseFee,
	}
	return nil
}

// SimulatedTransaction is a single transaction result of eth_callBundle.
type SimulatedTransaction struct {
	Hash         common.Hash     `json:"txHash"`
	CoinbaseDiff BigQuantity     `json:"coinbaseDiff"`
	CoinbaseTip  BigQuantity     `json:"ethSentToCoinbase"`
	GasPrice     BigQuantity     `json:"gasPrice"`
	GasUsed      Quantity        `json:"gasUsed"`
	GasFees      BigQuantity     `json:"gasFees"`
	From         common.Address  `json:"fromAddress"`
	To           *common.Address `json:"toAddress,omitempty"`
	Value        *hexutil.Bytes  `json:"value,omitempty"`
	Error        *string         `json:"error,omitempty"`
	Revert       *string         `json:"revert,omitempty"`
}

func (t *SimulatedTransaction) UnmarshalJSON(data []byte) error {
	type alias SimulatedTransaction
	var wire struct {
		*alias
		To json.RawMessage `json:"toAddress"`
	}
	wire.alias = (*alias)(t)
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.To = nil
	if len(wire.To) > 0 && string(wire.To) != "null" {
		to, err := decodeOptionalAddress(wire.To)
		if err != nil {
			return err
		}
		t.To = to
	}
	return nil
}

// EffectiveGasPrice is the coinbase payment per unit of gas. Zero when no gas was used.
func (t *SimulatedTransaction) EffectiveGasPrice() *uint256.Int {
	return effectiveGasPrice(&t.CoinbaseDiff, uint64(t.GasUsed))
}

// SimulatedBundle is the result of eth_callBundle.
type SimulatedBundle struct {
	Hash            common.Hash            `json:"bundleHash"`
	CoinbaseDiff    BigQuantity            `json:"coinbaseDiff"`
	CoinbaseTip     BigQuantity            `json:"ethSentToCoinbase"`
	GasPrice        BigQuantity            `json:"bundleGasPrice"`
	GasUsed         Quantity               `json:"totalGasUsed"`
	GasFees         BigQuantity            `json:"gasFees"`
	SimulationBlock Quantity               `json:"stateBlockNumber"`
	Transactions    []SimulatedTransaction `json:"results"`
}

func (b *SimulatedBundle) EffectiveGasPrice() *uint256.Int {
	return effectiveGasPrice(&b.CoinbaseDiff, uint64(b.GasUsed))
}

// Reverted lists the results that carry an execution error.
func (b *SimulatedBundle) Reverted() []SimulatedTransaction {
	var res []SimulatedTransaction
	for _, tx := range b.Transactions {
		if tx.Error != nil {
			res = append(res, tx)
		}
	}
	return res
}

func effectiveGasPrice(coinbaseDiff *BigQuantity, gasUsed uint64) *uint256.Int {
	// uint256 division by zero yields zero
	return new(uint256.Int).Div(coinbaseDiff.Int(), uint256.NewInt(gasUsed))
}

// SendBundleResponse is the acknowledgement of eth_sendBundle.
type SendBundleResponse struct {
	BundleHash *common.Hash `json:"bundleHash,omitempty"`
}

// BuilderTimestamp is the time a builder identified by its pubkey acted on a bundle.
type BuilderTimestamp struct {
	Pubkey    string    `json:"pubkey"`
	Timestamp time.Time `json:"timestamp"`
}

// BundleStats is the result of flashbots_getBundleStatsV2.
type BundleStats struct {
	IsHighPriority         bool               `json:"isHighPriority"`
	IsSimulated            bool               `json:"isSimulated"`
	SimulatedAt            *time.Time         `json:"simulatedAt,omitempty"`
	ReceivedAt             *time.Time         `json:"receivedAt,omitempty"`
	ConsideredByBuildersAt []BuilderTimestamp `json:"consideredByBuildersAt,omitempty"`
	SealedByBuildersAt     []BuilderTimestamp `json:"sealedByBuildersAt,omitempty"`
}

// UserStats is the result of flashbots_getUserStatsV2.
type UserStats struct {
	IsHighPriority           bool        `json:"isHighPriority"`
	AllTimeValidatorPayments BigQuantity `json:"allTimeValidatorPayments"`
	AllTimeGasSimulated      BigQuantity `json:"allTimeGasSimulated"`
	Last7dValidatorPayments  BigQuantity `json:"last7dValidatorPayments"`
	Last7dGasSimulated       BigQuantity `json:"last7dGasSimulated"`
	Last1dValidatorPayments  BigQuantity `json:"last1dValidatorPayments"`
	Last1dGasSimulated       BigQuantity `json:"last1dGasSimulated"`
}

type GetBundleStatsParams struct {
	BundleHash  common.Hash    `json:"bundleHash"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
}

type GetUserStatsParams struct {
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
}
