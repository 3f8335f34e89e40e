// Package crawler polls the ledger for DLMM transactions and feeds their
// instructions to a handler, oldest first, persisting its position between
// runs.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/lpwatch/internal/logger"
	"github.com/rewired-gh/lpwatch/internal/metrics"
	"github.com/rewired-gh/lpwatch/internal/models"
	"github.com/rewired-gh/lpwatch/internal/storage"
)

// Config holds the datasource parameters.
type Config struct {
	ProgramID             solana.PublicKey
	BatchLimit            int
	PollInterval          time.Duration
	Commitment            rpc.CommitmentType
	MaxConcurrentRequests int
}

// RPC is the subset of *rpc.Client the crawler uses.
type RPC interface {
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// CursorStore persists the newest processed signature.
type CursorStore interface {
	LoadCursor(programID solana.PublicKey) (*storage.Cursor, error)
	SaveCursor(c *storage.Cursor) error
}

// Handler consumes one instruction unit.
type Handler func(ctx context.Context, unit models.InstructionUnit) error

// Fetched is a decoded transaction as returned by the node.
type Fetched struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *solana.UnixTimeSeconds
	Tx        *solana.Transaction
	Meta      *rpc.TransactionMeta
}

// Crawler walks the program's signature history forward from its cursor.
type Crawler struct {
	client  RPC
	store   CursorStore
	handler Handler
	metrics *metrics.Metrics
	config  Config

	cursor *storage.Cursor
	fetch  func(ctx context.Context, sig solana.Signature) (*Fetched, error)
}

// New creates a crawler. store may be nil, in which case the cursor lives
// in memory only.
func New(client RPC, store CursorStore, handler Handler, m *metrics.Metrics, config Config) *Crawler {
	if config.BatchLimit < 1 {
		config.BatchLimit = 10
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.Commitment == "" {
		config.Commitment = rpc.CommitmentFinalized
	}
	if config.MaxConcurrentRequests < 1 {
		config.MaxConcurrentRequests = 1
	}
	if m == nil {
		m = metrics.New("")
	}
	c := &Crawler{
		client:  client,
		store:   store,
		handler: handler,
		metrics: m,
		config:  config,
	}
	c.fetch = c.fetchTransaction
	return c
}

// Run polls until ctx is cancelled. Poll failures are logged and retried on
// the next tick.
func (c *Crawler) Run(ctx context.Context) error {
	if c.store != nil {
		cursor, err := c.store.LoadCursor(c.config.ProgramID)
		if err != nil {
			return fmt.Errorf("failed to load cursor: %w", err)
		}
		c.cursor = cursor
	}
	if c.cursor != nil {
		logger.Info("Resuming after %s (slot %d)", c.cursor.Signature, c.cursor.Slot)
	} else {
		logger.Info("No saved cursor, starting from the latest %d transactions", c.config.BatchLimit)
	}

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	runPoll := func() {
		if err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveFailures++
			logger.Error("Poll failed (%d in a row): %v", consecutiveFailures, err)
			return
		}
		if consecutiveFailures > 0 {
			logger.Info("Poll recovered after %d failures", consecutiveFailures)
		}
		consecutiveFailures = 0
	}

	runPoll()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Crawler stopped")
			return nil
		case <-ticker.C:
			runPoll()
		}
	}
}

// Poll fetches signatures newer than the cursor and processes them oldest
// first. The cursor advances past every transaction handed to the handler;
// a fetch failure stops the batch so the remainder is retried.
func (c *Crawler) Poll(ctx context.Context) error {
	c.metrics.CrawlerPolls.Inc()

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      pointer.ToInt(c.config.BatchLimit),
		Commitment: c.config.Commitment,
	}
	if c.cursor != nil {
		opts.Until = c.cursor.Signature
	}
	sigs, err := c.client.GetSignaturesForAddressWithOpts(ctx, c.config.ProgramID, opts)
	if err != nil {
		return fmt.Errorf("failed to get signatures: %w", err)
	}
	if len(sigs) == 0 {
		logger.Debug("No new transactions")
		return nil
	}
	if len(sigs) == c.config.BatchLimit && c.cursor != nil {
		logger.Warn("Batch limit %d reached, older transactions since the cursor are skipped", c.config.BatchLimit)
	}

	ordered := oldestFirst(sigs)
	fetched := make([]*Fetched, len(ordered))
	fetchErrs := make([]error, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxConcurrentRequests)
	for i, s := range ordered {
		if s.Err != nil {
			continue
		}
		g.Go(func() error {
			fetched[i], fetchErrs[i] = c.fetch(gctx, s.Signature)
			return nil
		})
	}
	_ = g.Wait()

	var last *rpc.TransactionSignature
	for i, s := range ordered {
		if s.Err != nil {
			logger.Debug("Skipping failed transaction %s", s.Signature)
			last = s
			continue
		}
		if fetchErrs[i] != nil {
			c.saveCursor(last)
			return fmt.Errorf("failed to fetch transaction %s: %w", s.Signature, fetchErrs[i])
		}
		c.metrics.CrawlerTransactions.Inc()
		c.handle(ctx, fetched[i])
		last = s
	}
	c.saveCursor(last)
	return nil
}

func (c *Crawler) handle(ctx context.Context, f *Fetched) {
	if f.Meta != nil && f.Meta.Err != nil {
		logger.Debug("Skipping failed transaction %s", f.Signature)
		return
	}
	for _, unit := range ExtractUnits(c.config.ProgramID, f) {
		if err := c.handler(ctx, unit); err != nil {
			logger.WithFields(logger.Fields{
				"signature":   f.Signature.String(),
				"instruction": unit.Instruction.Name(),
			}).Errorf("Failed to process instruction: %v", err)
		}
	}
}

func (c *Crawler) saveCursor(s *rpc.TransactionSignature) {
	if s == nil {
		return
	}
	c.cursor = &storage.Cursor{
		ProgramID: c.config.ProgramID,
		Signature: s.Signature,
		Slot:      s.Slot,
		UpdatedAt: time.Now(),
	}
	if c.store == nil {
		return
	}
	if err := c.store.SaveCursor(c.cursor); err != nil {
		logger.Error("Failed to save cursor: %v", err)
	}
}

func (c *Crawler) fetchTransaction(ctx context.Context, sig solana.Signature) (*Fetched, error) {
	res, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.config.Commitment,
		MaxSupportedTransactionVersion: pointer.ToUint64(0),
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Transaction == nil {
		return nil, errors.New("transaction not available")
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return &Fetched{
		Signature: sig,
		Slot:      res.Slot,
		BlockTime: res.BlockTime,
		Tx:        tx,
		Meta:      res.Meta,
	}, nil
}

// oldestFirst reverses the node's newest-first ordering.
func oldestFirst(sigs []*rpc.TransactionSignature) []*rpc.TransactionSignature {
	out := make([]*rpc.TransactionSignature, len(sigs))
	for i, s := range sigs {
		out[len(sigs)-1-i] = s
	}
	return out
}
