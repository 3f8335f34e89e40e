package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/lpwatch/internal/dlmm"
	"github.com/rewired-gh/lpwatch/internal/logger"
	"github.com/rewired-gh/lpwatch/internal/metadata"
	"github.com/rewired-gh/lpwatch/internal/metrics"
	"github.com/rewired-gh/lpwatch/internal/models"
	"github.com/rewired-gh/lpwatch/internal/watchlist"
)

type Config struct {
	// ClientAccountFiltering enables the watchlist gate. When false every
	// instruction is classified.
	ClientAccountFiltering bool
}

func DefaultConfig() Config {
	return Config{ClientAccountFiltering: false}
}

// Resolver looks up token metadata by mint.
type Resolver interface {
	Resolve(ctx context.Context, mint solana.PublicKey) (*metadata.TokenMetadata, error)
}

// Notifier delivers notable events.
type Notifier interface {
	SendEvent(ctx context.Context, event *models.Event) error
}

var ErrAccountLayout = errors.New("instruction accounts do not match the expected layout")

type GateDecision string

const (
	GateDisabled GateDecision = "disabled"
	GateMatched  GateDecision = "matched"
	GateNoMatch  GateDecision = "no_match"
)

type GateResult struct {
	Decision GateDecision
	Matched  []solana.PublicKey
}

// Pass reports whether the instruction should be classified.
func (g GateResult) Pass() bool {
	return g.Decision != GateNoMatch
}

type Stats struct {
	Processed uint64
	Notified  uint64
}

// Monitor classifies instruction units and forwards notable swaps. It keeps
// no per-instruction state and is safe for concurrent use.
type Monitor struct {
	watchlist *watchlist.Watchlist
	resolver  Resolver
	notifier  Notifier
	metrics   *metrics.Metrics
	config    Config

	processed atomic.Uint64
	notified  atomic.Uint64
}

func New(wl *watchlist.Watchlist, resolver Resolver, notifier Notifier, m *metrics.Metrics, config Config) *Monitor {
	if wl == nil {
		wl = watchlist.New()
	}
	if m == nil {
		m = metrics.New("")
	}
	return &Monitor{
		watchlist: wl,
		resolver:  resolver,
		notifier:  notifier,
		metrics:   m,
		config:    config,
	}
}

// Gate checks the fee payer and every static account key against the watchlist.
func (m *Monitor) Gate(tx models.TransactionContext) GateResult {
	if !m.config.ClientAccountFiltering {
		return GateResult{Decision: GateDisabled}
	}
	candidates := make([]solana.PublicKey, 0, len(tx.AccountKeys)+1)
	candidates = append(candidates, tx.FeePayer)
	candidates = append(candidates, tx.AccountKeys...)

	matched := m.watchlist.Matches(candidates)
	if len(matched) == 0 {
		return GateResult{Decision: GateNoMatch}
	}
	return GateResult{Decision: GateMatched, Matched: matched}
}

// Process runs one unit through the gate and the classifier and dispatches
// the result when it is notable. Delivery failures are logged, not returned.
func (m *Monitor) Process(ctx context.Context, unit models.InstructionUnit) error {
	ix := unit.Instruction
	if ix == nil {
		return fmt.Errorf("instruction unit %s has no instruction", unit.Tx.Signature)
	}
	fields := logger.Fields{
		"signature":   unit.Tx.Signature.String(),
		"instruction": ix.Name(),
		"slot":        unit.Tx.Slot,
	}
	if !unit.Tx.BlockTime.IsZero() {
		fields["block_time"] = unit.Tx.BlockTime.UTC().Format(time.RFC3339)
	}
	log := logger.WithFields(fields)

	gate := m.Gate(unit.Tx)
	m.metrics.GateDecisions.WithLabelValues(string(gate.Decision)).Inc()
	log = log.WithField("gate", string(gate.Decision))

	switch gate.Decision {
	case GateNoMatch:
		log.Debug("No watched LP wallet in transaction, skipping")
		return nil
	case GateMatched:
		activity := models.NewEvent(models.LpActivityDetected, ix.Name(), unit.Tx)
		activity.Owner = unit.Tx.FeePayer
		activity.MatchedAddresses = gate.Matched
		log.WithFields(logger.Fields{
			"event_id":  activity.ID,
			"fee_payer": unit.Tx.FeePayer.String(),
			"matched":   addressStrings(gate.Matched),
		}).Info("LP wallet detected in transaction")
	}

	m.processed.Add(1)
	m.metrics.Instructions.WithLabelValues(ix.Name()).Inc()

	if unit.Tx.HasInnerInstructions {
		log.Info("Transaction has inner instructions")
	} else {
		log.Info("This transaction has no inner instructions")
	}

	event, err := m.Classify(ctx, unit)
	if err != nil {
		m.metrics.ProcessingErrors.Inc()
		return err
	}
	logEvent(event)

	if event.ShouldNotify() {
		if err := m.notifier.SendEvent(ctx, event); err != nil {
			m.metrics.Notifications.WithLabelValues("failed").Inc()
			log.WithField("event_id", event.ID).Errorf("Failed to send notification: %v", err)
		} else {
			m.metrics.Notifications.WithLabelValues("sent").Inc()
			m.notified.Add(1)
			log.WithField("event_id", event.ID).Info("Notification sent")
		}
	}
	return nil
}

// Classify turns an instruction into an Event. It resolves token symbols for
// dual-mint variants but never sends anything.
func (m *Monitor) Classify(ctx context.Context, unit models.InstructionUnit) (*models.Event, error) {
	switch ix := unit.Instruction.(type) {
	case dlmm.AddLiquidityEvent:
		return liquidityEvent(ix.Name(), ix.LiquidityEvent, unit.Tx), nil
	case dlmm.RemoveLiquidityEvent:
		return liquidityEvent(ix.Name(), ix.LiquidityEvent, unit.Tx), nil
	case dlmm.AddLiquidity:
		event, err := m.pairEvent(ctx, unit)
		if err != nil {
			return nil, err
		}
		event.AmountX = ix.LiquidityParameter.AmountX
		event.AmountY = ix.LiquidityParameter.AmountY
		event.BinCount = len(ix.LiquidityParameter.BinLiquidityDist)
		return event, nil
	case dlmm.RemoveLiquidity:
		event, err := m.pairEvent(ctx, unit)
		if err != nil {
			return nil, err
		}
		event.BinCount = len(ix.BinLiquidityRemoval)
		return event, nil
	case dlmm.Swap:
		event, err := m.pairEvent(ctx, unit)
		if err != nil {
			return nil, err
		}
		event.AmountIn = ix.AmountIn
		event.MinAmountOut = ix.MinAmountOut
		if event.SymbolX != nil && event.SymbolY != nil {
			event.Kind = models.SwapNotable
		}
		return event, nil
	case nil:
		return nil, fmt.Errorf("instruction unit %s has no instruction", unit.Tx.Signature)
	default:
		return models.NewEvent(models.Informational, ix.Name(), unit.Tx), nil
	}
}

func liquidityEvent(name string, body dlmm.LiquidityEvent, tx models.TransactionContext) *models.Event {
	event := models.NewEvent(models.Informational, name, tx)
	event.LbPair = body.LbPair
	event.Owner = body.From
	event.Position = body.Position
	event.Amounts = body.Amounts
	event.ActiveBinID = body.ActiveBinID
	return event
}

// pairEvent arranges the accounts of a dual-mint instruction and resolves
// both symbols. The event starts out Informational.
func (m *Monitor) pairEvent(ctx context.Context, unit models.InstructionUnit) (*models.Event, error) {
	name := unit.Instruction.Name()
	accounts, ok := dlmm.ArrangeAccounts(unit.Instruction, unit.Accounts)
	if !ok {
		return nil, fmt.Errorf("%w: %s with %d accounts in %s", ErrAccountLayout, name, len(unit.Accounts), unit.Tx.Signature)
	}

	event := models.NewEvent(models.Informational, name, unit.Tx)
	event.LbPair = accounts.LbPair
	event.Owner = accounts.Owner
	event.TokenXMint = accounts.TokenXMint
	event.TokenYMint = accounts.TokenYMint
	event.SymbolX, event.SymbolY = m.resolvePair(ctx, name, unit.Tx.Signature, accounts)
	return event, nil
}

// resolvePair looks up both mints concurrently. A failed side comes back nil
// and does not affect the other.
func (m *Monitor) resolvePair(ctx context.Context, name string, sig solana.Signature, accounts dlmm.PairAccounts) (x, y *string) {
	var g errgroup.Group
	g.Go(func() error {
		x = m.resolveSymbol(ctx, name, sig, "x", accounts.TokenXMint)
		return nil
	})
	g.Go(func() error {
		y = m.resolveSymbol(ctx, name, sig, "y", accounts.TokenYMint)
		return nil
	})
	_ = g.Wait()
	return x, y
}

func (m *Monitor) resolveSymbol(ctx context.Context, name string, sig solana.Signature, side string, mint solana.PublicKey) *string {
	md, err := m.resolver.Resolve(ctx, mint)
	if err != nil {
		m.metrics.MetadataLookups.WithLabelValues("error").Inc()
		logger.WithFields(logger.Fields{
			"signature":   sig.String(),
			"instruction": name,
			"side":        side,
			"mint":        mint.String(),
		}).Errorf("Failed to resolve token metadata: %v", err)
		return nil
	}
	m.metrics.MetadataLookups.WithLabelValues("ok").Inc()
	symbol := md.Symbol
	return &symbol
}

func logEvent(event *models.Event) {
	fields := logger.Fields{
		"event_id":    event.ID,
		"kind":        string(event.Kind),
		"instruction": event.Instruction,
		"signature":   event.Signature,
	}
	if !event.LbPair.IsZero() {
		fields["lb_pair"] = event.LbPair.String()
	}
	if event.SymbolX != nil {
		fields["symbol_x"] = *event.SymbolX
	}
	if event.SymbolY != nil {
		fields["symbol_y"] = *event.SymbolY
	}

	switch event.Instruction {
	case "AddLiquidityEvent", "RemoveLiquidityEvent":
		fields["owner"] = event.Owner.String()
		fields["position"] = event.Position.String()
		fields["amounts"] = event.Amounts
		fields["active_bin_id"] = event.ActiveBinID
	case "AddLiquidity":
		fields["amount_x"] = event.AmountX
		fields["amount_y"] = event.AmountY
		fields["bins"] = event.BinCount
	case "RemoveLiquidity":
		fields["bins"] = event.BinCount
	case "Swap":
		fields["amount_in"] = event.AmountIn
		fields["min_amount_out"] = event.MinAmountOut
	}
	logger.WithFields(fields).Info("Instruction classified")
}

// Stats returns counters for the /status command.
func (m *Monitor) Stats() Stats {
	return Stats{Processed: m.processed.Load(), Notified: m.notified.Load()}
}

// WatchlistSize returns the number of watched wallets.
func (m *Monitor) WatchlistSize() int {
	return m.watchlist.Len()
}

func addressStrings(addrs []solana.PublicKey) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
