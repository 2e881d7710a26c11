package sequence

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"intentflow/pkg/chain"
	"intentflow/pkg/protocol"
	"intentflow/pkg/router"
)

func TestApproveRunConfirmsWithoutTxWhenAllowanceCovers(t *testing.T) {
	te := newTestEnv(t)
	te.provider.chain(1).allowances = map[string]*big.Int{
		allowanceKey(addr(usdcMain), addr(testVault)): big.NewInt(5000000),
	}

	step := NewApproveStep(1, usdcMain, testVault, "1000000")
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Empty(t, step.TxRef)
	require.Empty(t, te.provider.chain(1).approvals)
}

func TestApproveRunSubmitsAndConfirms(t *testing.T) {
	te := newTestEnv(t)

	step := NewApproveStep(1, usdcMain, testVault, "1000000")
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.NotEmpty(t, step.TxRef)

	calls := te.provider.chain(1).approvals
	require.Len(t, calls, 1)
	require.Equal(t, addr(usdcMain), calls[0].token)
	require.Equal(t, addr(testVault), calls[0].spender)
	require.Equal(t, big.NewInt(1000000), calls[0].amount)
}

func TestApproveRunInvalidAmount(t *testing.T) {
	te := newTestEnv(t)

	step := NewApproveStep(1, usdcMain, testVault, "not-a-number")
	require.Error(t, step.Run(context.Background(), te.env))
}

func TestApproveRunResumedMidFlightDoesNotResubmit(t *testing.T) {
	te := newTestEnv(t)

	step := NewApproveStep(1, usdcMain, testVault, "1000000")
	step.StepStatus = StatusSubmitted
	step.TxRef = "0x00000000000000000000000000000000000000000000000000000000000000aa"

	require.NoError(t, step.Run(context.Background(), te.env))
	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Empty(t, te.provider.chain(1).approvals)
}

func TestPermitRunProducesHandoff(t *testing.T) {
	te := newTestEnv(t)

	step := NewPermitSignatureStep(1, usdcMain, testVault, "1000000")
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Empty(t, step.TxRef)

	permit := te.env.Session.Handoff.Permit
	require.NotNil(t, permit)
	require.NotEmpty(t, permit.Signature)
	require.NotEmpty(t, permit.Nonce)
	require.Greater(t, permit.Deadline, int64(0))
	require.Equal(t, 1, te.provider.chain(1).signed)
}

func TestPermitRunSwitchesActiveChain(t *testing.T) {
	te := newTestEnv(t)

	step := NewPermitSignatureStep(42161, usdcArb, testVault, "1000000")
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, int64(42161), te.env.Session.ActiveChain())
}

func TestDepositRunRequiresPermit(t *testing.T) {
	te := newTestEnv(t)

	step := NewDepositStep(1, usdcMain, testVault, "1000000")
	err := step.Run(context.Background(), te.env)
	require.ErrorIs(t, err, chain.ErrMissingPermitState)
	require.Empty(t, te.protocol.deposits)
}

func TestDepositRunSubmitsWithPermit(t *testing.T) {
	te := newTestEnv(t)
	te.env.Session.Handoff.Permit = &chain.PermitData{Signature: "0xsig", Nonce: "7", Deadline: 99}

	step := NewDepositStep(1, usdcMain, testVault, "1000000")
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Equal(t, "task-1", step.TaskRef)

	require.Len(t, te.protocol.deposits, 1)
	req := te.protocol.deposits[0]
	require.Equal(t, testOwner.Hex(), req.OwnerAddress)
	require.Equal(t, "1000000", req.Amount)
	require.NotNil(t, req.Permit)
	require.Equal(t, "0xsig", req.Permit.Signature)
}

func TestDepositRunUsesRouteReceivedAmount(t *testing.T) {
	te := newTestEnv(t)
	te.env.Session.Handoff.Permit = &chain.PermitData{Signature: "0xsig", Nonce: "7", Deadline: 99}
	te.env.Session.Handoff.RouteReceivedAmount = "998500"

	step := NewDepositStep(42161, usdcArb, testVault, "1000000")
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Len(t, te.protocol.deposits, 1)
	require.Equal(t, "998500", te.protocol.deposits[0].Amount)
}

func TestDepositRunTaskFailure(t *testing.T) {
	te := newTestEnv(t)
	te.env.Session.Handoff.Permit = &chain.PermitData{Signature: "0xsig", Nonce: "7", Deadline: 99}
	te.protocol.taskState = protocol.TaskFailed
	te.protocol.taskError = "insufficient balance"

	step := NewDepositStep(1, usdcMain, testVault, "1000000")
	err := step.Run(context.Background(), te.env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient balance")
}

func TestDepositRunResumedMidFlightRePollsTask(t *testing.T) {
	te := newTestEnv(t)

	step := NewDepositStep(1, usdcMain, testVault, "1000000")
	step.StepStatus = StatusConfirming
	step.TaskRef = "task-42"

	// No permit in the handoff: a resumed step with a task reference must not
	// try to re-submit, only re-poll.
	require.NoError(t, step.Run(context.Background(), te.env))
	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Empty(t, te.protocol.deposits)
}

func TestWithdrawRunSubmitsAndConfirms(t *testing.T) {
	te := newTestEnv(t)

	step := NewWithdrawStep(1, usdcMain, "500000")
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Len(t, te.protocol.withdraws, 1)
	require.Equal(t, "500000", te.protocol.withdraws[0].Amount)
	require.Equal(t, testOwner.Hex(), te.protocol.withdraws[0].OwnerAddress)
}

func TestRouteLegRunSubmitsAndSettles(t *testing.T) {
	te := newTestEnv(t)
	te.router.statuses = []*router.TransferStatus{
		{Status: router.TransferStatusPending},
		{Status: router.TransferStatusDone, ReceivedAmount: "998500"},
	}

	step := NewRouteLegStep(twoLegRoute().Legs[1], true)
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.NotEmpty(t, step.TxRef)
	require.Equal(t, addr(bridgeHop), te.provider.chain(1).payloads[0])
	require.Equal(t, "998500", te.env.Session.Handoff.RouteReceivedAmount)
}

func TestRouteLegRunNonFinalLegDoesNotRecordAmount(t *testing.T) {
	te := newTestEnv(t)
	te.router.statuses = []*router.TransferStatus{
		{Status: router.TransferStatusDone, ReceivedAmount: "998500"},
	}

	step := NewRouteLegStep(twoLegRoute().Legs[0], false)
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Empty(t, te.env.Session.Handoff.RouteReceivedAmount)
}

func TestRouteLegRunBridgeFailure(t *testing.T) {
	te := newTestEnv(t)
	te.router.statuses = []*router.TransferStatus{
		{Status: router.TransferStatusFailed},
	}

	step := NewRouteLegStep(twoLegRoute().Legs[0], false)
	err := step.Run(context.Background(), te.env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bridge transfer failed")
}

func TestRouteLegRunInvalidCalldata(t *testing.T) {
	te := newTestEnv(t)

	leg := twoLegRoute().Legs[0]
	leg.Payload.Data = "not-hex"
	step := NewRouteLegStep(leg, false)

	require.Error(t, step.Run(context.Background(), te.env))
	require.Empty(t, te.provider.chain(1).payloads)
}

func TestPayFeesRunConfirmsWithoutCallWhenNothingOwed(t *testing.T) {
	te := newTestEnv(t)

	step := NewPayFeesStep(1)
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Empty(t, step.TaskRef)
	require.Zero(t, te.protocol.feePays)
}

func TestPayFeesRunSettlesOutstandingFees(t *testing.T) {
	te := newTestEnv(t)
	te.protocol.fees = []protocol.FeeBalance{{TokenAddress: usdcMain, ChainID: 1, Amount: "250"}}

	step := NewPayFeesStep(1)
	require.NoError(t, step.Run(context.Background(), te.env))

	require.Equal(t, StatusConfirmed, step.StepStatus)
	require.Equal(t, 1, te.protocol.feePays)
	require.NotEmpty(t, step.TaskRef)
}

func TestPayFeesIsNeededAssumesOwedOnQueryFailure(t *testing.T) {
	te := newTestEnv(t)
	te.protocol.feesErr = errors.New("backend unavailable")

	step := NewPayFeesStep(1)
	needed, err := step.IsNeeded(context.Background(), te.env)
	require.NoError(t, err)
	require.True(t, needed)
}
