package models

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

func strPtr(s string) *string { return &s }

func TestNewEvent(t *testing.T) {
	tx := TransactionContext{
		Signature:            solana.MustSignatureFromBase58("5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"),
		HasInnerInstructions: true,
	}
	a := NewEvent(Informational, "Swap", tx)
	b := NewEvent(Informational, "Swap", tx)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("NewEvent() IDs = %q, %q, want distinct non-empty", a.ID, b.ID)
	}
	if a.Signature != tx.Signature.String() {
		t.Errorf("NewEvent() Signature = %q, want %q", a.Signature, tx.Signature.String())
	}
	if !a.HasInnerInstructions {
		t.Error("NewEvent() HasInnerInstructions = false, want true")
	}
	if a.DetectedAt.IsZero() {
		t.Error("NewEvent() DetectedAt is zero")
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"informational", Event{Kind: Informational, Instruction: "ClaimFee"}, false},
		{"lp activity", Event{Kind: LpActivityDetected, Instruction: "Swap"}, false},
		{"notable swap", Event{Kind: SwapNotable, Instruction: "Swap", SymbolX: strPtr("USDC"), SymbolY: strPtr("SOL")}, false},
		{"notable swap missing symbol", Event{Kind: SwapNotable, Instruction: "Swap", SymbolX: strPtr("USDC")}, true},
		{"unknown kind", Event{Kind: "loud", Instruction: "Swap"}, true},
		{"empty instruction", Event{Kind: Informational}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		kind EventKind
		want bool
	}{
		{SwapNotable, true},
		{Informational, false},
		{LpActivityDetected, false},
	}
	for _, tt := range tests {
		e := Event{Kind: tt.kind}
		if got := e.ShouldNotify(); got != tt.want {
			t.Errorf("ShouldNotify() for %s = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
