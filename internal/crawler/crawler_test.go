package crawler

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/lpwatch/internal/dlmm"
	"github.com/rewired-gh/lpwatch/internal/models"
	"github.com/rewired-gh/lpwatch/internal/storage"
)

var (
	payer    = solana.MustPublicKeyFromBase58("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	user     = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	router   = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	lookedUp = solana.MustPublicKeyFromBase58("HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH")
)

func swapData(amountIn, minOut uint64) []byte {
	disc := dlmm.InstructionDiscriminator("swap")
	data := append([]byte{}, disc[:]...)
	data = binary.LittleEndian.AppendUint64(data, amountIn)
	return binary.LittleEndian.AppendUint64(data, minOut)
}

func sig(b byte) solana.Signature {
	var s solana.Signature
	s[0] = b
	return s
}

// metaFromJSON builds transaction metadata the way the node returns it.
func metaFromJSON(t *testing.T, raw string) *rpc.TransactionMeta {
	t.Helper()
	var meta rpc.TransactionMeta
	require.NoError(t, json.Unmarshal([]byte(raw), &meta))
	return &meta
}

func TestExtractUnits_OuterAndInnerInOrder(t *testing.T) {
	keys := solana.PublicKeySlice{payer, user, dlmm.ProgramID, router}
	tx := &solana.Transaction{Message: solana.Message{
		AccountKeys: keys,
		Instructions: []solana.CompiledInstruction{
			{ProgramIDIndex: 3, Accounts: []uint16{0, 1}, Data: solana.Base58{1, 2, 3}},
			{ProgramIDIndex: 2, Accounts: []uint16{0, 1}, Data: swapData(2, 1)},
			{ProgramIDIndex: 1, Accounts: []uint16{0}, Data: swapData(3, 1)},
		},
	}}
	meta := metaFromJSON(t, fmt.Sprintf(`{
		"err": null,
		"innerInstructions": [
			{"index": 0, "instructions": [{"programIdIndex": 2, "accounts": [1, 0], "data": %q}]}
		],
		"loadedAddresses": {"writable": [], "readonly": []}
	}`, base58.Encode(swapData(1, 1))))
	blockTime := solana.UnixTimeSeconds(1700000000)

	units := ExtractUnits(dlmm.ProgramID, &Fetched{Signature: sig(1), Slot: 99, BlockTime: &blockTime, Tx: tx, Meta: meta})
	require.Len(t, units, 2)

	first, ok := units[0].Instruction.(dlmm.Swap)
	require.True(t, ok)
	assert.Equal(t, uint64(1), first.AmountIn)
	assert.Equal(t, []solana.PublicKey{user, payer}, units[0].Accounts)

	second, ok := units[1].Instruction.(dlmm.Swap)
	require.True(t, ok)
	assert.Equal(t, uint64(2), second.AmountIn)

	txc := units[1].Tx
	assert.Equal(t, sig(1), txc.Signature)
	assert.Equal(t, payer, txc.FeePayer)
	assert.True(t, txc.HasInnerInstructions)
	assert.Equal(t, uint64(99), txc.Slot)
	assert.Equal(t, int64(1700000000), txc.BlockTime.Unix())
	assert.Equal(t, []solana.PublicKey(keys), txc.AccountKeys)
}

func TestExtractUnits_LoadedAddresses(t *testing.T) {
	tx := &solana.Transaction{Message: solana.Message{
		AccountKeys: solana.PublicKeySlice{payer},
		Instructions: []solana.CompiledInstruction{
			// index 1 = loaded writable, index 2 = loaded readonly
			{ProgramIDIndex: 2, Accounts: []uint16{1, 0}, Data: swapData(5, 4)},
		},
	}}
	meta := metaFromJSON(t, fmt.Sprintf(`{
		"err": null,
		"innerInstructions": [],
		"loadedAddresses": {"writable": [%q], "readonly": [%q]}
	}`, lookedUp.String(), dlmm.ProgramID.String()))

	units := ExtractUnits(dlmm.ProgramID, &Fetched{Signature: sig(2), Tx: tx, Meta: meta})
	require.Len(t, units, 1)
	assert.Equal(t, []solana.PublicKey{lookedUp, payer}, units[0].Accounts)
	assert.False(t, units[0].Tx.HasInnerInstructions)
	assert.Equal(t, []solana.PublicKey{payer}, units[0].Tx.AccountKeys, "gate sees static keys only")
}

func TestExtractUnits_SkipsBadInstructions(t *testing.T) {
	tx := &solana.Transaction{Message: solana.Message{
		AccountKeys: solana.PublicKeySlice{payer, dlmm.ProgramID},
		Instructions: []solana.CompiledInstruction{
			{ProgramIDIndex: 1, Accounts: []uint16{0}, Data: solana.Base58{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0}},
			{ProgramIDIndex: 1, Accounts: []uint16{0, 7}, Data: swapData(1, 1)},
			{ProgramIDIndex: 9, Accounts: []uint16{0}, Data: swapData(1, 1)},
			{ProgramIDIndex: 1, Accounts: []uint16{0}, Data: swapData(1, 1)[:12]},
			{ProgramIDIndex: 1, Accounts: []uint16{0}, Data: swapData(8, 8)},
		},
	}}

	units := ExtractUnits(dlmm.ProgramID, &Fetched{Signature: sig(3), Tx: tx})
	require.Len(t, units, 1)
	assert.Equal(t, uint64(8), units[0].Instruction.(dlmm.Swap).AmountIn)
	assert.False(t, units[0].Tx.HasInnerInstructions)
	assert.True(t, units[0].Tx.BlockTime.IsZero())
}

func TestExtractUnits_Nil(t *testing.T) {
	assert.Nil(t, ExtractUnits(dlmm.ProgramID, nil))
	assert.Nil(t, ExtractUnits(dlmm.ProgramID, &Fetched{}))
}

type fakeRPC struct {
	mu    sync.Mutex
	pages [][]*rpc.TransactionSignature
	opts  []rpc.GetSignaturesForAddressOpts
	err   error
}

func (f *fakeRPC) GetSignaturesForAddressWithOpts(_ context.Context, _ solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, *opts)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeRPC) GetTransaction(context.Context, solana.Signature, *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	return nil, errors.New("not used")
}

type memStore struct {
	mu     sync.Mutex
	cursor *storage.Cursor
	saves  int
}

func (m *memStore) LoadCursor(solana.PublicKey) (*storage.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *memStore) SaveCursor(c *storage.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.cursor = &cp
	m.saves++
	return nil
}

// newestFirst builds a signature page the way the node orders it.
func newestFirst(ids ...byte) []*rpc.TransactionSignature {
	out := make([]*rpc.TransactionSignature, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, &rpc.TransactionSignature{Signature: sig(ids[i]), Slot: uint64(ids[i])})
	}
	return out
}

func swapTx(s solana.Signature) *Fetched {
	return &Fetched{
		Signature: s,
		Tx: &solana.Transaction{Message: solana.Message{
			AccountKeys:  solana.PublicKeySlice{payer, dlmm.ProgramID},
			Instructions: []solana.CompiledInstruction{{ProgramIDIndex: 1, Accounts: []uint16{0}, Data: swapData(uint64(s[0]), 0)}},
		}},
	}
}

type recorder struct {
	mu   sync.Mutex
	seen []byte
	err  error
}

func (r *recorder) handle(_ context.Context, unit models.InstructionUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, unit.Tx.Signature[0])
	return r.err
}

func newTestCrawler(client RPC, store CursorStore, h Handler, concurrency int) *Crawler {
	c := New(client, store, h, nil, Config{ProgramID: dlmm.ProgramID, BatchLimit: 10, MaxConcurrentRequests: concurrency})
	c.fetch = func(_ context.Context, s solana.Signature) (*Fetched, error) { return swapTx(s), nil }
	return c
}

func TestPoll_ProcessesOldestFirstAndSavesCursor(t *testing.T) {
	page := newestFirst(1, 2, 3, 4)
	page[1].Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}} // signature 3 failed
	client := &fakeRPC{pages: [][]*rpc.TransactionSignature{page, newestFirst(5)}}
	store := &memStore{}
	rec := &recorder{}
	c := newTestCrawler(client, store, rec.handle, 4)

	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, []byte{1, 2, 4}, rec.seen)
	require.NotNil(t, store.cursor)
	assert.Equal(t, sig(4), store.cursor.Signature)
	assert.Equal(t, uint64(4), store.cursor.Slot)

	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, []byte{1, 2, 4, 5}, rec.seen)

	require.Len(t, client.opts, 2)
	assert.True(t, client.opts[0].Until.IsZero())
	assert.Equal(t, sig(4), client.opts[1].Until)
	assert.Equal(t, 10, *client.opts[1].Limit)
	assert.Equal(t, rpc.CommitmentFinalized, client.opts[1].Commitment)
}

func TestPoll_FetchFailureStopsBatch(t *testing.T) {
	client := &fakeRPC{pages: [][]*rpc.TransactionSignature{newestFirst(1, 2, 3)}}
	store := &memStore{}
	rec := &recorder{}
	c := newTestCrawler(client, store, rec.handle, 1)
	c.fetch = func(_ context.Context, s solana.Signature) (*Fetched, error) {
		if s == sig(2) {
			return nil, errors.New("429 Too Many Requests")
		}
		return swapTx(s), nil
	}

	err := c.Poll(context.Background())
	require.Error(t, err)
	assert.Equal(t, []byte{1}, rec.seen)
	require.NotNil(t, store.cursor)
	assert.Equal(t, sig(1), store.cursor.Signature, "cursor stops before the failed fetch")
}

func TestPoll_HandlerErrorsDoNotStopBatch(t *testing.T) {
	client := &fakeRPC{pages: [][]*rpc.TransactionSignature{newestFirst(1, 2)}}
	store := &memStore{}
	rec := &recorder{err: errors.New("boom")}
	c := newTestCrawler(client, store, rec.handle, 1)

	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, []byte{1, 2}, rec.seen)
	assert.Equal(t, sig(2), store.cursor.Signature)
}

func TestPoll_EmptyAndErrors(t *testing.T) {
	store := &memStore{}
	c := newTestCrawler(&fakeRPC{}, store, (&recorder{}).handle, 1)
	require.NoError(t, c.Poll(context.Background()))
	assert.Zero(t, store.saves)

	c = newTestCrawler(&fakeRPC{err: errors.New("connection refused")}, store, (&recorder{}).handle, 1)
	assert.Error(t, c.Poll(context.Background()))
}

func TestPoll_FailedMetaIsSkipped(t *testing.T) {
	client := &fakeRPC{pages: [][]*rpc.TransactionSignature{newestFirst(1)}}
	rec := &recorder{}
	c := newTestCrawler(client, nil, rec.handle, 1)
	c.fetch = func(_ context.Context, s solana.Signature) (*Fetched, error) {
		f := swapTx(s)
		f.Meta = &rpc.TransactionMeta{Err: "failed"}
		return f, nil
	}

	require.NoError(t, c.Poll(context.Background()))
	assert.Empty(t, rec.seen)
	require.NotNil(t, c.cursor)
	assert.Equal(t, sig(1), c.cursor.Signature)
}

func TestRun_ResumesFromStoredCursor(t *testing.T) {
	client := &fakeRPC{}
	store := &memStore{cursor: &storage.Cursor{ProgramID: dlmm.ProgramID, Signature: sig(9), Slot: 9}}
	c := newTestCrawler(client, store, (&recorder{}).handle, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))

	require.NotEmpty(t, client.opts)
	assert.Equal(t, sig(9), client.opts[0].Until)
}

func TestNew_Defaults(t *testing.T) {
	c := New(&fakeRPC{}, nil, (&recorder{}).handle, nil, Config{ProgramID: dlmm.ProgramID})
	assert.Equal(t, 10, c.config.BatchLimit)
	assert.Equal(t, rpc.CommitmentFinalized, c.config.Commitment)
	assert.Equal(t, 1, c.config.MaxConcurrentRequests)
	assert.Positive(t, c.config.PollInterval)
}
