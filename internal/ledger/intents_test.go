package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerAddr = "OWNER7XKQJVVOQ4B4B3C5YSYSLBVPQZFQPZV4EXAMPLEADDRESS"
	agentAddr = "AGENT4YH2KQZV3B5C6DTZTMNCWQRAS7RQA5W5EXAMPLEADDRESS"
)

func newTestBuilder() *IntentBuilder {
	return NewIntentBuilder(743291048, ownerAddr, NewCodec(1000, 100))
}

func TestBuildSetPosition(t *testing.T) {
	b := newTestBuilder()

	intent, err := b.BuildSetPosition(0.19, 0.156, 0.232, 5000, ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, MethodSetPosition, intent.Method)
	assert.Equal(t, uint64(743291048), intent.AppID)
	assert.Equal(t, []uint64{190, 156, 232, 500000}, intent.Args)
	assert.Equal(t, ownerAddr, intent.Sender)
	assert.NotEmpty(t, intent.ID)
}

func TestBuildSetPosition_RejectsNonOwner(t *testing.T) {
	b := newTestBuilder()

	_, err := b.BuildSetPosition(0.19, 0.156, 0.232, 5000, agentAddr)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestBuildSetPosition_ValidatesBounds(t *testing.T) {
	b := newTestBuilder()

	_, err := b.BuildSetPosition(0.19, 0.232, 0.156, 5000, ownerAddr)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = b.BuildSetPosition(0.19, 0.156, 0.232, -1, ownerAddr)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = b.BuildSetPosition(0, 0.156, 0.232, 5000, ownerAddr)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBuildTriggerRebalance_AllowsAgentSender(t *testing.T) {
	b := newTestBuilder()

	intent, err := b.BuildTriggerRebalance(0.1476, 0.2196, agentAddr)
	require.NoError(t, err)
	assert.Equal(t, MethodTriggerRebalance, intent.Method)
	assert.Equal(t, []uint64{147, 219}, intent.Args)
	assert.Equal(t, agentAddr, intent.Sender)
}

func TestBuildWithdraw_RefusesAgent(t *testing.T) {
	b := newTestBuilder()

	_, err := b.BuildWithdraw(10, 500, agentAddr)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestBuildDeposit_RefusesAgent(t *testing.T) {
	b := newTestBuilder()

	_, err := b.BuildDeposit(10, 500, agentAddr)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestBuildDeposit_Owner(t *testing.T) {
	b := newTestBuilder()

	intent, err := b.BuildDeposit(2500, 2500, ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2_500_000_000, 2_500_000_000}, intent.Args)
}

func TestBuildTransfer_MicroUnitRoundTrip(t *testing.T) {
	// Deposits go on the wire in micro-units and must decode back through
	// the same codec the reader uses, not the display capital scale.
	codec := NewCodec(1000, 100)
	b := NewIntentBuilder(743291048, ownerAddr, codec)

	intent, err := b.BuildDeposit(0, 250.0, ownerAddr)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 250_000_000}, intent.Args)
	assert.InDelta(t, 250.0, codec.DecodeMicro(intent.Args[1]), 1e-9)

	intent, err = b.BuildWithdraw(12.5, 0.000001, ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, []uint64{12_500_000, 1}, intent.Args)
	assert.InDelta(t, 12.5, codec.DecodeMicro(intent.Args[0]), 1e-9)
}

func TestBuildTransfer_RejectsZeroAndNegative(t *testing.T) {
	b := newTestBuilder()

	_, err := b.BuildDeposit(0, 0, ownerAddr)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = b.BuildWithdraw(-5, 0, ownerAddr)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBuildClosePosition(t *testing.T) {
	b := newTestBuilder()

	intent, err := b.BuildClosePosition(ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, MethodSetPosition, intent.Method)
	assert.Equal(t, []uint64{0, 0, 0, 0}, intent.Args)

	_, err = b.BuildClosePosition(agentAddr)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestBuildLogDecision_AllowsAgent(t *testing.T) {
	b := newTestBuilder()

	intent, err := b.BuildLogDecision("REBALANCE", agentAddr)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, intent.Args)
}

func TestBuildAgentDelegation_OwnerOnly(t *testing.T) {
	b := newTestBuilder()

	_, err := b.BuildAuthorizeAgent(agentAddr)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = b.BuildRevokeAgent(agentAddr)
	assert.ErrorIs(t, err, ErrNotOwner)

	intent, err := b.BuildAuthorizeAgent(ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, MethodAuthorizeAgent, intent.Method)
}
