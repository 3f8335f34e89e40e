package dlmm

import "github.com/gagliardetto/solana-go"

// Instruction is one decoded DLMM instruction or event. The set of
// implementations is closed.
type Instruction interface {
	// Name returns the variant tag, e.g. "Swap" or "AddLiquidityEvent".
	Name() string
	isInstruction()
}

// LiquidityEvent is the payload shared by the AddLiquidity and
// RemoveLiquidity events.
type LiquidityEvent struct {
	LbPair      solana.PublicKey
	From        solana.PublicKey
	Position    solana.PublicKey
	Amounts     [2]uint64
	ActiveBinID int32
}

type AddLiquidityEvent struct{ LiquidityEvent }

type RemoveLiquidityEvent struct{ LiquidityEvent }

type BinLiquidityDistribution struct {
	BinID         int32
	DistributionX uint16
	DistributionY uint16
}

type LiquidityParameter struct {
	AmountX          uint64
	AmountY          uint64
	BinLiquidityDist []BinLiquidityDistribution
}

type AddLiquidity struct {
	LiquidityParameter LiquidityParameter
}

type BinLiquidityReduction struct {
	BinID       int32
	BpsToRemove uint16
}

type RemoveLiquidity struct {
	BinLiquidityRemoval []BinLiquidityReduction
}

type Swap struct {
	AmountIn     uint64
	MinAmountOut uint64
}

// Other is any recognised instruction or event the watcher does not inspect.
type Other struct {
	Kind string
}

func (AddLiquidityEvent) Name() string    { return "AddLiquidityEvent" }
func (RemoveLiquidityEvent) Name() string { return "RemoveLiquidityEvent" }
func (AddLiquidity) Name() string         { return "AddLiquidity" }
func (RemoveLiquidity) Name() string      { return "RemoveLiquidity" }
func (Swap) Name() string                 { return "Swap" }
func (o Other) Name() string              { return o.Kind }

func (AddLiquidityEvent) isInstruction()    {}
func (RemoveLiquidityEvent) isInstruction() {}
func (AddLiquidity) isInstruction()         {}
func (RemoveLiquidity) isInstruction()      {}
func (Swap) isInstruction()                 {}
func (Other) isInstruction()                {}

// PairAccounts names the accounts of an instruction that trades or provides
// liquidity against a pair.
type PairAccounts struct {
	LbPair     solana.PublicKey
	TokenXMint solana.PublicKey
	TokenYMint solana.PublicKey
	Owner      solana.PublicKey
}

// Account positions from the program's instruction layouts.
const (
	swapAccountCount = 15
	swapLbPair       = 0
	swapTokenXMint   = 6
	swapTokenYMint   = 7
	swapUser         = 10

	liquidityAccountCount = 16
	liquidityLbPair       = 1
	liquidityTokenXMint   = 7
	liquidityTokenYMint   = 8
	liquiditySender       = 11
)

// ArrangeAccounts maps positional accounts to named roles for Swap,
// AddLiquidity and RemoveLiquidity. It returns false for other variants or
// when too few accounts are supplied.
func ArrangeAccounts(ix Instruction, accounts []solana.PublicKey) (PairAccounts, bool) {
	switch ix.(type) {
	case Swap:
		if len(accounts) < swapAccountCount {
			return PairAccounts{}, false
		}
		return PairAccounts{
			LbPair:     accounts[swapLbPair],
			TokenXMint: accounts[swapTokenXMint],
			TokenYMint: accounts[swapTokenYMint],
			Owner:      accounts[swapUser],
		}, true
	case AddLiquidity, RemoveLiquidity:
		if len(accounts) < liquidityAccountCount {
			return PairAccounts{}, false
		}
		return PairAccounts{
			LbPair:     accounts[liquidityLbPair],
			TokenXMint: accounts[liquidityTokenXMint],
			TokenYMint: accounts[liquidityTokenYMint],
			Owner:      accounts[liquiditySender],
		}, true
	}
	return PairAccounts{}, false
}
