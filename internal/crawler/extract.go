package crawler

import (
	"github.com/gagliardetto/solana-go"

	"github.com/rewired-gh/lpwatch/internal/dlmm"
	"github.com/rewired-gh/lpwatch/internal/logger"
	"github.com/rewired-gh/lpwatch/internal/models"
)

// ExtractUnits decodes every programID instruction in f, top-level and
// inner, in execution order. Instructions that do not decode are skipped.
func ExtractUnits(programID solana.PublicKey, f *Fetched) []models.InstructionUnit {
	if f == nil || f.Tx == nil {
		return nil
	}
	msg := f.Tx.Message

	keys := make([]solana.PublicKey, 0, len(msg.AccountKeys))
	keys = append(keys, msg.AccountKeys...)
	inner := make(map[uint16][]compiled)
	hasInner := false
	if f.Meta != nil {
		keys = append(keys, f.Meta.LoadedAddresses.Writable...)
		keys = append(keys, f.Meta.LoadedAddresses.ReadOnly...)
		hasInner = len(f.Meta.InnerInstructions) > 0
		for _, group := range f.Meta.InnerInstructions {
			for _, ix := range group.Instructions {
				inner[group.Index] = append(inner[group.Index], compiled{
					programIndex: ix.ProgramIDIndex,
					accounts:     ix.Accounts,
					data:         []byte(ix.Data),
				})
			}
		}
	}

	tx := models.TransactionContext{
		Signature:            f.Signature,
		AccountKeys:          msg.AccountKeys,
		HasInnerInstructions: hasInner,
		Slot:                 f.Slot,
	}
	if len(msg.AccountKeys) > 0 {
		tx.FeePayer = msg.AccountKeys[0]
	}
	if f.BlockTime != nil {
		tx.BlockTime = f.BlockTime.Time()
	}

	var units []models.InstructionUnit
	add := func(c compiled) {
		if unit, ok := c.unit(programID, keys, tx); ok {
			units = append(units, unit)
		}
	}
	for i, ix := range msg.Instructions {
		add(compiled{programIndex: ix.ProgramIDIndex, accounts: ix.Accounts, data: []byte(ix.Data)})
		for _, c := range inner[uint16(i)] {
			add(c)
		}
	}
	return units
}

// compiled is an instruction with indexes not yet resolved to keys.
type compiled struct {
	programIndex uint16
	accounts     []uint16
	data         []byte
}

func (c compiled) unit(programID solana.PublicKey, keys []solana.PublicKey, tx models.TransactionContext) (models.InstructionUnit, bool) {
	if int(c.programIndex) >= len(keys) || !keys[c.programIndex].Equals(programID) {
		return models.InstructionUnit{}, false
	}
	accounts := make([]solana.PublicKey, len(c.accounts))
	for i, idx := range c.accounts {
		if int(idx) >= len(keys) {
			logger.Debug("Account index %d out of range in %s", idx, tx.Signature)
			return models.InstructionUnit{}, false
		}
		accounts[i] = keys[idx]
	}

	ix, err := dlmm.Decode(c.data)
	if err != nil {
		logger.Debug("Skipping undecodable instruction in %s: %v", tx.Signature, err)
		return models.InstructionUnit{}, false
	}
	return models.InstructionUnit{Instruction: ix, Accounts: accounts, Tx: tx}, true
}
