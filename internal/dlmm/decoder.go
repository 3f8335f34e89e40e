package dlmm

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/mr-tron/base58"
)

var (
	ErrInvalidData        = errors.New("invalid instruction data")
	ErrUnknownInstruction = errors.New("unknown instruction discriminator")
)

// Decode turns raw instruction data into an Instruction. Event CPIs are
// recognised by EventIxTag.
func Decode(data []byte) (Instruction, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidData, len(data))
	}
	var disc Discriminator
	copy(disc[:], data[:8])

	if disc == EventIxTag {
		return decodeEvent(data[8:])
	}

	name, ok := instructionsByDisc[disc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, base58.Encode(disc[:]))
	}

	args := data[8:]
	switch name {
	case "swap":
		var ix Swap
		if err := decodeArgs(name, args, &ix); err != nil {
			return nil, err
		}
		return ix, nil
	case "add_liquidity":
		var ix AddLiquidity
		if err := decodeArgs(name, args, &ix.LiquidityParameter); err != nil {
			return nil, err
		}
		return ix, nil
	case "remove_liquidity":
		var ix RemoveLiquidity
		if err := decodeArgs(name, args, &ix.BinLiquidityRemoval); err != nil {
			return nil, err
		}
		return ix, nil
	}
	return Other{Kind: camelCase(name)}, nil
}

func decodeEvent(data []byte) (Instruction, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: event of %d bytes", ErrInvalidData, len(data))
	}
	var disc Discriminator
	copy(disc[:], data[:8])

	name, ok := eventsByDisc[disc]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrUnknownInstruction, base58.Encode(disc[:]))
	}

	body := data[8:]
	switch name {
	case "AddLiquidity":
		var ev AddLiquidityEvent
		if err := decodeArgs(name, body, &ev.LiquidityEvent); err != nil {
			return nil, err
		}
		return ev, nil
	case "RemoveLiquidity":
		var ev RemoveLiquidityEvent
		if err := decodeArgs(name, body, &ev.LiquidityEvent); err != nil {
			return nil, err
		}
		return ev, nil
	}
	return Other{Kind: name + "Event"}, nil
}

func decodeArgs(name string, data []byte, v interface{}) error {
	if err := bin.NewBorshDecoder(data).Decode(v); err != nil {
		return fmt.Errorf("%w: %s (%s): %v", ErrInvalidData, name, base58.Encode(data), err)
	}
	return nil
}
