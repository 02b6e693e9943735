/*

This file builds the unsigned transaction intents for the position contract.
Building is where authorization is enforced: fund-moving methods (set_position,
deposit, withdraw) refuse to build for a non-owner sender, while
trigger_rebalance and log_decision may be built for a delegated agent
identity. The contract re-checks all of this on-chain; refusing here keeps an
automation key from even producing a withdrawable transaction.

*/

package ledger

import (
	"fmt"

	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/types"
	"github.com/google/uuid"
)

var intentLogger = logger.GetForComponent("intent_builder")

// Method names the contract ABI methods.
type Method string

const (
	MethodSetPosition      Method = "set_position"
	MethodTriggerRebalance Method = "trigger_rebalance"
	MethodDeposit          Method = "deposit"
	MethodWithdraw         Method = "withdraw"
	MethodAuthorizeAgent   Method = "authorize_agent"
	MethodRevokeAgent      Method = "revoke_agent"
	MethodLogDecision      Method = "log_decision"
)

// TxIntent is one unsigned application call, ready for the external signer.
// Args are already fixed-point encoded.
type TxIntent struct {
	ID     string
	AppID  uint64
	Method Method
	Args   []uint64
	Sender string
}

// IntentBuilder builds validated unsigned intents for one application.
type IntentBuilder struct {
	appID uint64
	owner string
	codec Codec
}

// NewIntentBuilder builds intents for appID, with owner as the creator
// identity that holds custody rights.
func NewIntentBuilder(appID uint64, owner string, codec Codec) *IntentBuilder {
	return &IntentBuilder{appID: appID, owner: owner, codec: codec}
}

// BuildSetPosition builds the position-set intent. Creator only.
// Enforced invariants: lower < upper, capital >= 0, entry > 0. The stricter
// lower < entry < upper is advisory and only logged when violated.
func (b *IntentBuilder) BuildSetPosition(entry, lower, upper, capital float64, sender string) (TxIntent, error) {
	if err := b.requireOwner(MethodSetPosition, sender); err != nil {
		return TxIntent{}, err
	}
	if entry <= 0 {
		return TxIntent{}, fmt.Errorf("%w: entry price must be positive, got %f", ErrValidation, entry)
	}
	if lower <= 0 || lower >= upper {
		return TxIntent{}, fmt.Errorf("%w: bounds must satisfy 0 < lower < upper, got [%f, %f]", ErrValidation, lower, upper)
	}
	if capital < 0 {
		return TxIntent{}, fmt.Errorf("%w: capital cannot be negative, got %f", ErrValidation, capital)
	}
	if entry <= lower || entry >= upper {
		intentLogger.Warn().
			Float64("entry", entry).
			Float64("lower", lower).
			Float64("upper", upper).
			Msg("Entry price outside range bounds; position opens out of range")
	}

	entryRaw, trunc1, err := b.codec.EncodePrice(entry)
	if err != nil {
		return TxIntent{}, err
	}
	lowerRaw, trunc2, err := b.codec.EncodePrice(lower)
	if err != nil {
		return TxIntent{}, err
	}
	upperRaw, trunc3, err := b.codec.EncodePrice(upper)
	if err != nil {
		return TxIntent{}, err
	}
	capitalRaw, trunc4, err := b.codec.EncodeCapital(capital)
	if err != nil {
		return TxIntent{}, err
	}
	if trunc1 || trunc2 || trunc3 || trunc4 {
		b.logTruncation(MethodSetPosition)
	}

	return b.intent(MethodSetPosition, sender, entryRaw, lowerRaw, upperRaw, capitalRaw), nil
}

// BuildTriggerRebalance builds the rebalance intent. Creator or delegated
// agent; the contract verifies delegation on-chain.
func (b *IntentBuilder) BuildTriggerRebalance(newLower, newUpper float64, sender string) (TxIntent, error) {
	if sender == "" {
		return TxIntent{}, fmt.Errorf("%w: sender identity required", ErrValidation)
	}
	if newLower <= 0 || newLower >= newUpper {
		return TxIntent{}, fmt.Errorf("%w: bounds must satisfy 0 < lower < upper, got [%f, %f]", ErrValidation, newLower, newUpper)
	}

	lowerRaw, trunc1, err := b.codec.EncodePrice(newLower)
	if err != nil {
		return TxIntent{}, err
	}
	upperRaw, trunc2, err := b.codec.EncodePrice(newUpper)
	if err != nil {
		return TxIntent{}, err
	}
	if trunc1 || trunc2 {
		b.logTruncation(MethodTriggerRebalance)
	}

	return b.intent(MethodTriggerRebalance, sender, lowerRaw, upperRaw), nil
}

// BuildDeposit builds a deposit intent. Creator only.
func (b *IntentBuilder) BuildDeposit(baseAmount, quoteAmount float64, sender string) (TxIntent, error) {
	if err := b.requireOwner(MethodDeposit, sender); err != nil {
		return TxIntent{}, err
	}
	return b.buildTransfer(MethodDeposit, baseAmount, quoteAmount, sender)
}

// BuildWithdraw builds a withdrawal intent. Creator only; this refusal for
// any other sender is the custody guarantee of the vault.
func (b *IntentBuilder) BuildWithdraw(baseAmount, quoteAmount float64, sender string) (TxIntent, error) {
	if err := b.requireOwner(MethodWithdraw, sender); err != nil {
		return TxIntent{}, err
	}
	return b.buildTransfer(MethodWithdraw, baseAmount, quoteAmount, sender)
}

// BuildClosePosition zeroes bounds and capital on-chain via set_position.
// Creator only.
func (b *IntentBuilder) BuildClosePosition(sender string) (TxIntent, error) {
	if err := b.requireOwner(MethodSetPosition, sender); err != nil {
		return TxIntent{}, err
	}
	return b.intent(MethodSetPosition, sender, 0, 0, 0, 0), nil
}

// BuildAuthorizeAgent delegates rebalance-trigger rights to an agent
// identity. Creator only. The agent identity travels in the note field of the
// application call, so Args carries only the flag.
func (b *IntentBuilder) BuildAuthorizeAgent(sender string) (TxIntent, error) {
	if err := b.requireOwner(MethodAuthorizeAgent, sender); err != nil {
		return TxIntent{}, err
	}
	return b.intent(MethodAuthorizeAgent, sender), nil
}

// BuildRevokeAgent removes agent delegation. Creator only.
func (b *IntentBuilder) BuildRevokeAgent(sender string) (TxIntent, error) {
	if err := b.requireOwner(MethodRevokeAgent, sender); err != nil {
		return TxIntent{}, err
	}
	return b.intent(MethodRevokeAgent, sender), nil
}

// BuildLogDecision records a decision on-chain. Creator or delegated agent.
func (b *IntentBuilder) BuildLogDecision(action types.Action, sender string) (TxIntent, error) {
	if sender == "" {
		return TxIntent{}, fmt.Errorf("%w: sender identity required", ErrValidation)
	}
	return b.intent(MethodLogDecision, sender, uint64(action.Code())), nil
}

// buildTransfer encodes the shared deposit/withdraw argument layout. Transfer
// amounts travel in micro-units, not the display capital scale.
func (b *IntentBuilder) buildTransfer(method Method, baseAmount, quoteAmount float64, sender string) (TxIntent, error) {
	if baseAmount < 0 || quoteAmount < 0 {
		return TxIntent{}, fmt.Errorf("%w: transfer amounts cannot be negative", ErrValidation)
	}
	if baseAmount == 0 && quoteAmount == 0 {
		return TxIntent{}, fmt.Errorf("%w: transfer requires a non-zero amount", ErrValidation)
	}

	baseRaw, trunc1, err := b.codec.EncodeMicro(baseAmount)
	if err != nil {
		return TxIntent{}, err
	}
	quoteRaw, trunc2, err := b.codec.EncodeMicro(quoteAmount)
	if err != nil {
		return TxIntent{}, err
	}
	if trunc1 || trunc2 {
		b.logTruncation(method)
	}

	return b.intent(method, sender, baseRaw, quoteRaw), nil
}

func (b *IntentBuilder) requireOwner(method Method, sender string) error {
	if sender == "" {
		return fmt.Errorf("%w: sender identity required", ErrValidation)
	}
	if sender != b.owner {
		return fmt.Errorf("%w: %s is restricted to the position owner", ErrNotOwner, method)
	}
	return nil
}

func (b *IntentBuilder) intent(method Method, sender string, args ...uint64) TxIntent {
	return TxIntent{
		ID:     uuid.New().String(),
		AppID:  b.appID,
		Method: method,
		Args:   args,
		Sender: sender,
	}
}

func (b *IntentBuilder) logTruncation(method Method) {
	intentLogger.Warn().
		Str("method", string(method)).
		Msg("Sub-scale precision dropped by fixed-point encoding")
}
