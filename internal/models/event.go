// Package models defines the domain values passed between the crawler, the
// classifier and the notifier: decoded instruction units, transaction
// context, events and outbound messages.
package models

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// EventKind classifies an Event.
type EventKind string

const (
	// LpActivityDetected marks a transaction touching a watched LP wallet.
	LpActivityDetected EventKind = "lp_activity_detected"
	// SwapNotable is a swap whose both token symbols resolved. It is the only
	// kind that triggers a notification.
	SwapNotable EventKind = "swap_notable"
	// Informational events are logged only.
	Informational EventKind = "informational"
)

// Event is the result of classifying one instruction.
type Event struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	Instruction string    `json:"instruction"`
	Signature   string    `json:"signature"`
	DetectedAt  time.Time `json:"detected_at"`

	LbPair   solana.PublicKey `json:"lb_pair,omitempty"`
	Owner    solana.PublicKey `json:"owner,omitempty"`
	Position solana.PublicKey `json:"position,omitempty"`

	TokenXMint solana.PublicKey `json:"token_x_mint,omitempty"`
	TokenYMint solana.PublicKey `json:"token_y_mint,omitempty"`
	SymbolX    *string          `json:"symbol_x,omitempty"` // nil when resolution failed
	SymbolY    *string          `json:"symbol_y,omitempty"`

	AmountIn     uint64    `json:"amount_in,omitempty"`
	MinAmountOut uint64    `json:"min_amount_out,omitempty"`
	AmountX      uint64    `json:"amount_x,omitempty"`
	AmountY      uint64    `json:"amount_y,omitempty"`
	Amounts      [2]uint64 `json:"amounts,omitempty"`
	ActiveBinID  int32     `json:"active_bin_id,omitempty"`
	BinCount     int       `json:"bin_count,omitempty"`

	MatchedAddresses     []solana.PublicKey `json:"matched_addresses,omitempty"`
	HasInnerInstructions bool               `json:"has_inner_instructions"`
}

// NewEvent creates an event of the given kind stamped with a fresh ID.
func NewEvent(kind EventKind, instruction string, tx TransactionContext) *Event {
	return &Event{
		ID:                   uuid.New().String(),
		Kind:                 kind,
		Instruction:          instruction,
		Signature:            tx.Signature.String(),
		DetectedAt:           time.Now(),
		HasInnerInstructions: tx.HasInnerInstructions,
	}
}

// Validate checks event field constraints.
func (e *Event) Validate() error {
	switch e.Kind {
	case LpActivityDetected, SwapNotable, Informational:
	default:
		return errors.New("event kind is unknown")
	}
	if e.Instruction == "" {
		return errors.New("event instruction must not be empty")
	}
	if e.Kind == SwapNotable && (e.SymbolX == nil || e.SymbolY == nil) {
		return errors.New("notable swap requires both token symbols")
	}
	return nil
}

// ShouldNotify reports whether the event warrants a notification.
func (e *Event) ShouldNotify() bool {
	return e.Kind == SwapNotable
}
