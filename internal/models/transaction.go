package models

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rewired-gh/lpwatch/internal/dlmm"
)

// TransactionContext carries what the classifier needs to know about the
// transaction an instruction came from.
type TransactionContext struct {
	Signature            solana.Signature
	FeePayer             solana.PublicKey
	AccountKeys          []solana.PublicKey // static keys, in message order
	HasInnerInstructions bool
	Slot                 uint64
	BlockTime            time.Time // zero when unknown
}

// InstructionUnit is one unit of work from the feed.
type InstructionUnit struct {
	Instruction dlmm.Instruction
	Accounts    []solana.PublicKey
	Tx          TransactionContext
}

// NotificationMessage is a rendered message for one chat.
type NotificationMessage struct {
	ChatID int64 // 0 = the notifier's configured chat
	Text   string
}
