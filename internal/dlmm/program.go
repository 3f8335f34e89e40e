// Package dlmm decodes Meteora DLMM instructions and the events the program
// emits through self-CPI.
package dlmm

import (
	"crypto/sha256"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ProgramID is the Meteora DLMM program.
var ProgramID = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")

// Discriminator is the 8-byte Anchor prefix identifying an instruction or event.
type Discriminator [8]byte

// EventIxTag prefixes every event emitted through emit_cpi!.
var EventIxTag = Discriminator{0xe4, 0x45, 0xa5, 0x2e, 0x51, 0xcb, 0x9a, 0x1d}

// InstructionDiscriminator returns sha256("global:" + name)[:8].
func InstructionDiscriminator(name string) Discriminator {
	return hashPrefix("global:" + name)
}

// EventDiscriminator returns sha256("event:" + name)[:8].
func EventDiscriminator(name string) Discriminator {
	return hashPrefix("event:" + name)
}

func hashPrefix(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

var instructionNames = []string{
	"initialize_lb_pair",
	"initialize_permission_lb_pair",
	"initialize_customizable_permissionless_lb_pair",
	"initialize_bin_array_bitmap_extension",
	"initialize_bin_array",
	"add_liquidity",
	"add_liquidity_by_weight",
	"add_liquidity_by_strategy",
	"add_liquidity_by_strategy_one_side",
	"add_liquidity_one_side",
	"add_liquidity_one_side_precise",
	"remove_liquidity",
	"remove_all_liquidity",
	"remove_liquidity_by_range",
	"initialize_position",
	"initialize_position_pda",
	"initialize_position_by_operator",
	"update_position_operator",
	"swap",
	"swap_exact_out",
	"swap_with_price_impact",
	"withdraw_protocol_fee",
	"initialize_reward",
	"fund_reward",
	"update_reward_funder",
	"update_reward_duration",
	"claim_reward",
	"claim_fee",
	"close_position",
	"update_fee_parameters",
	"increase_oracle_length",
	"initialize_preset_parameter",
	"close_preset_parameter",
	"toggle_pair_status",
	"migrate_position",
	"migrate_bin_array",
	"update_fees_and_rewards",
	"withdraw_ineligible_reward",
	"set_activation_point",
	"go_to_a_bin",
	"set_pre_activation_duration",
	"set_pre_activation_swap_address",
}

var eventNames = []string{
	"CompositionFee",
	"AddLiquidity",
	"RemoveLiquidity",
	"Swap",
	"ClaimReward",
	"FundReward",
	"InitializeReward",
	"UpdateRewardDuration",
	"UpdateRewardFunder",
	"PositionClose",
	"ClaimFee",
	"LbPairCreate",
	"PositionCreate",
	"FeeParameterUpdate",
	"IncreaseObservation",
	"WithdrawIneligibleReward",
	"UpdatePositionOperator",
	"UpdatePositionLockReleasePoint",
	"GoToABin",
}

var (
	instructionsByDisc = make(map[Discriminator]string, len(instructionNames))
	eventsByDisc       = make(map[Discriminator]string, len(eventNames))
)

func init() {
	for _, n := range instructionNames {
		instructionsByDisc[InstructionDiscriminator(n)] = n
	}
	for _, n := range eventNames {
		eventsByDisc[EventDiscriminator(n)] = n
	}
}

// camelCase turns "add_liquidity_by_weight" into "AddLiquidityByWeight".
func camelCase(snake string) string {
	var b strings.Builder
	for _, part := range strings.Split(snake, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
