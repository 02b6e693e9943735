/*

Package orchestrator executes position lifecycle operations end to end:
build the transaction intent, hand it to the external signer, and on
confirmation update the store and push the new snapshot into the reconciler so
the dashboard reflects the change immediately instead of waiting out a poll.

A failed submission changes nothing: no store write, no snapshot update, no
retry. The caller decides whether to try again.

*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Div1912/Ageis/internal/config"
	"github.com/Div1912/Ageis/internal/ledger"
	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/store"
	"github.com/Div1912/Ageis/internal/types"
)

var (
	// ErrConcurrentOperation means another lifecycle operation is still in
	// flight; operations are strictly serialized.
	ErrConcurrentOperation = errors.New("another position operation is already in flight")

	// ErrDryRun means the configured mode does not permit transaction
	// submission.
	ErrDryRun = errors.New("transaction submission disabled in dry-run mode")
)

// SnapshotState is the reconciler surface the orchestrator needs.
type SnapshotState interface {
	Current() types.Snapshot
	ForceUpdate(snap types.Snapshot, pinFor time.Duration)
}

// RecordStore is the store surface the orchestrator needs.
type RecordStore interface {
	SavePosition(ctx context.Context, pos types.StoredPosition) (types.StoredPosition, error)
	ActivePositions(ctx context.Context, owner string) ([]types.StoredPosition, error)
	ClosePosition(ctx context.Context, id int64) error
	UpdatePosition(ctx context.Context, id int64, update store.PositionUpdate) error
	UpsertDepositor(ctx context.Context, d types.Depositor) error
}

// Orchestrator serializes lifecycle operations for one owner identity.
type Orchestrator struct {
	cfg     *config.Config
	builder *ledger.IntentBuilder
	signer  ledger.TransactionSigner
	state   SnapshotState
	store   RecordStore
	log     zerolog.Logger

	inFlight chan struct{} // capacity 1, holds the operation token
	now      func() time.Time
}

// New wires an orchestrator. signer may be nil only in dry-run mode.
func New(cfg *config.Config, builder *ledger.IntentBuilder, signer ledger.TransactionSigner, state SnapshotState, recordStore RecordStore) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		builder:  builder,
		signer:   signer,
		state:    state,
		store:    recordStore,
		log:      logger.GetForComponent("orchestrator"),
		inFlight: make(chan struct{}, 1),
		now:      time.Now,
	}
}

// acquire takes the single operation slot without blocking.
func (o *Orchestrator) acquire() error {
	select {
	case o.inFlight <- struct{}{}:
		return nil
	default:
		return ErrConcurrentOperation
	}
}

func (o *Orchestrator) release() {
	<-o.inFlight
}

// submit pushes one intent through the signer, honoring the mode gate.
func (o *Orchestrator) submit(ctx context.Context, intent ledger.TxIntent) (string, error) {
	if o.cfg.Mode != "live" {
		o.log.Warn().Str("method", string(intent.Method)).Str("mode", o.cfg.Mode).
			Msg("Submission blocked by mode gate")
		return "", ErrDryRun
	}
	if o.signer == nil {
		return "", fmt.Errorf("%w: no signer configured", ledger.ErrSigningFailed)
	}

	o.log.Info().
		Str("intent_id", intent.ID).
		Str("method", string(intent.Method)).
		Str("sender", intent.Sender).
		Msg("Submitting transaction for signing")

	txID, err := o.signer.SignAndSubmit(ctx, intent)
	if err != nil {
		o.log.Error().Err(err).Str("intent_id", intent.ID).Msg("Transaction submission failed")
		return "", err
	}
	o.log.Info().Str("intent_id", intent.ID).Str("tx_id", txID).Msg("Transaction confirmed")
	return txID, nil
}

// OpenPosition opens a fresh range: set_position on-chain, then a new active
// store record, then the snapshot.
func (o *Orchestrator) OpenPosition(ctx context.Context, entry, lower, upper, capital float64, sender string) (types.StoredPosition, string, error) {
	if err := o.acquire(); err != nil {
		return types.StoredPosition{}, "", err
	}
	defer o.release()

	intent, err := o.builder.BuildSetPosition(entry, lower, upper, capital, sender)
	if err != nil {
		return types.StoredPosition{}, "", err
	}
	txID, err := o.submit(ctx, intent)
	if err != nil {
		return types.StoredPosition{}, "", err
	}

	openTS := o.now().Unix()
	saved, err := o.store.SavePosition(ctx, types.StoredPosition{
		Owner:         sender,
		EntryPrice:    entry,
		LowerBound:    lower,
		UpperBound:    upper,
		Capital:       capital,
		OpenTimestamp: openTS,
		AppID:         o.cfg.AppID,
	})
	if err != nil {
		// The chain accepted the position; a store failure must not hide
		// that from the caller.
		o.log.Error().Err(err).Msg("Position confirmed on-chain but store write failed")
	}

	snap := o.state.Current()
	snap.EntryPrice = entry
	snap.LowerBound = lower
	snap.UpperBound = upper
	snap.Capital = capital
	snap.OpenTimestamp = openTS
	snap.TotalRebalances = 0
	o.state.ForceUpdate(snap, o.cfg.PollInterval)

	return saved, txID, nil
}

// Rebalance moves the range to [newLower, newUpper] via trigger_rebalance.
// sender may be the owner or a delegated agent identity.
func (o *Orchestrator) Rebalance(ctx context.Context, newLower, newUpper float64, sender string) (types.RebalanceEvent, error) {
	if err := o.acquire(); err != nil {
		return types.RebalanceEvent{}, err
	}
	defer o.release()

	intent, err := o.builder.BuildTriggerRebalance(newLower, newUpper, sender)
	if err != nil {
		return types.RebalanceEvent{}, err
	}
	txID, err := o.submit(ctx, intent)
	if err != nil {
		return types.RebalanceEvent{}, err
	}

	ts := o.now().Unix()
	snap := o.state.Current()
	snap.LowerBound = newLower
	snap.UpperBound = newUpper
	snap.TotalRebalances++
	snap.LastRebalanceTimestamp = ts
	o.state.ForceUpdate(snap, o.cfg.PollInterval)

	o.syncRecordBounds(ctx, snap.OwnerID, newLower, newUpper, snap.TotalRebalances)

	return types.RebalanceEvent{
		TxID:      txID,
		Timestamp: ts,
		NewLower:  newLower,
		NewUpper:  newUpper,
	}, nil
}

// syncRecordBounds mirrors a confirmed rebalance into the active store
// record. Best effort.
func (o *Orchestrator) syncRecordBounds(ctx context.Context, owner string, lower, upper float64, rebalances int64) {
	if owner == "" {
		return
	}
	active, err := o.store.ActivePositions(ctx, owner)
	if err != nil || len(active) == 0 {
		return
	}
	if err := o.store.UpdatePosition(ctx, active[0].ID, store.PositionUpdate{
		LowerBound:      &lower,
		UpperBound:      &upper,
		TotalRebalances: &rebalances,
	}); err != nil {
		o.log.Warn().Err(err).Msg("Failed to sync rebalance into store record")
	}
}

// Deposit moves funds into the vault. Owner only, enforced at build time.
func (o *Orchestrator) Deposit(ctx context.Context, baseAmount, quoteAmount float64, sender string) (string, error) {
	if err := o.acquire(); err != nil {
		return "", err
	}
	defer o.release()

	intent, err := o.builder.BuildDeposit(baseAmount, quoteAmount, sender)
	if err != nil {
		return "", err
	}
	txID, err := o.submit(ctx, intent)
	if err != nil {
		return "", err
	}

	if err := o.store.UpsertDepositor(ctx, types.Depositor{
		Owner:          sender,
		BaseDeposited:  baseAmount,
		QuoteDeposited: quoteAmount,
		JoinTx:         txID,
	}); err != nil {
		o.log.Warn().Err(err).Msg("Failed to record depositor")
	}

	snap := o.state.Current()
	snap.DepositedBase += baseAmount
	snap.DepositedQuote += quoteAmount
	snap.TotalDeposits++
	o.state.ForceUpdate(snap, o.cfg.PollInterval)
	return txID, nil
}

// Withdraw moves funds out of the vault. Owner only, enforced at build time.
func (o *Orchestrator) Withdraw(ctx context.Context, baseAmount, quoteAmount float64, sender string) (string, error) {
	if err := o.acquire(); err != nil {
		return "", err
	}
	defer o.release()

	intent, err := o.builder.BuildWithdraw(baseAmount, quoteAmount, sender)
	if err != nil {
		return "", err
	}
	txID, err := o.submit(ctx, intent)
	if err != nil {
		return "", err
	}

	snap := o.state.Current()
	snap.TotalWithdrawals++
	o.state.ForceUpdate(snap, o.cfg.PollInterval)
	return txID, nil
}

// ClosePosition zeroes the on-chain range and archives the store record.
func (o *Orchestrator) ClosePosition(ctx context.Context, sender string) (string, error) {
	if err := o.acquire(); err != nil {
		return "", err
	}
	defer o.release()

	intent, err := o.builder.BuildClosePosition(sender)
	if err != nil {
		return "", err
	}
	txID, err := o.submit(ctx, intent)
	if err != nil {
		return "", err
	}

	if active, err := o.store.ActivePositions(ctx, sender); err == nil && len(active) > 0 {
		if err := o.store.ClosePosition(ctx, active[0].ID); err != nil {
			o.log.Warn().Err(err).Msg("Failed to archive store record on close")
		}
	}

	empty := types.Empty(o.cfg.AppID, sender)
	o.state.ForceUpdate(empty, o.cfg.PollInterval)
	return txID, nil
}

// AuthorizeAgent grants the agent identity rebalance-trigger rights.
func (o *Orchestrator) AuthorizeAgent(ctx context.Context, sender string) (string, error) {
	return o.setDelegation(ctx, sender, true)
}

// RevokeAgent removes the delegation.
func (o *Orchestrator) RevokeAgent(ctx context.Context, sender string) (string, error) {
	return o.setDelegation(ctx, sender, false)
}

func (o *Orchestrator) setDelegation(ctx context.Context, sender string, grant bool) (string, error) {
	if err := o.acquire(); err != nil {
		return "", err
	}
	defer o.release()

	var (
		intent ledger.TxIntent
		err    error
	)
	if grant {
		intent, err = o.builder.BuildAuthorizeAgent(sender)
	} else {
		intent, err = o.builder.BuildRevokeAgent(sender)
	}
	if err != nil {
		return "", err
	}
	txID, err := o.submit(ctx, intent)
	if err != nil {
		return "", err
	}

	snap := o.state.Current()
	snap.AgentAuthorized = grant
	o.state.ForceUpdate(snap, o.cfg.PollInterval)
	return txID, nil
}

// LogDecision records a decision on-chain. Used by the agent loop; failures
// are reported but carry no position risk.
func (o *Orchestrator) LogDecision(ctx context.Context, action types.Action, sender string) (string, error) {
	if err := o.acquire(); err != nil {
		return "", err
	}
	defer o.release()

	intent, err := o.builder.BuildLogDecision(action, sender)
	if err != nil {
		return "", err
	}
	txID, err := o.submit(ctx, intent)
	if err != nil {
		return "", err
	}

	snap := o.state.Current()
	snap.TotalDecisions++
	snap.LastDecisionTimestamp = o.now().Unix()
	snap.LastDecisionAction = action.Code()
	o.state.ForceUpdate(snap, o.cfg.PollInterval)
	return txID, nil
}
