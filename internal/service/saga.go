package service

import (
	"context"
	"time"
)

// HotWallet is a shared source wallet the saga spends from. Passed in
// explicitly per call; there is no process-wide "current operation wallet".
type HotWallet struct {
	Address string
	Seed    string
}

type sagaState int

const (
	sagaInit sagaState = iota
	sagaFeeSent
	sagaPrincipalSent
	sagaCompensating
	sagaDone
	sagaFailed
)

func (st sagaState) String() string {
	switch st {
	case sagaInit:
		return "INIT"
	case sagaFeeSent:
		return "FEE_SENT"
	case sagaPrincipalSent:
		return "PRINCIPAL_SENT"
	case sagaCompensating:
		return "COMPENSATING"
	case sagaDone:
		return "DONE"
	case sagaFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// SagaResult is the saga's terminal outcome. Reason is empty iff the saga
// reached DONE; ManualIntervention marks the one non-self-healing failure.
type SagaResult struct {
	TxHash             string
	FeeTxHash          string
	Reason             string
	ManualIntervention bool
	Err                error
}

// disburse runs the two-phase token transfer: fee first, then principal,
// with a compensating fee reversal if the principal send fails after the fee
// moved. Once the fee transfer is broadcast the saga always runs to a
// terminal state; there is no cancellation path.
func (s *Service) disburse(ctx context.Context, total, fee float64, reward, feeWallet HotWallet, userAddress string) SagaResult {
	state := sagaInit
	var result SagaResult

	if fee > 0 {
		feeTxHash, err := s.transfer.Send(ctx, reward.Seed, feeWallet.Address, fee)
		if err != nil {
			// Nothing has moved yet; no compensation needed.
			s.logger.Errorf("fee transfer failed: %v", err)
			return SagaResult{Reason: ReasonFeeTransferFailed, Err: err}
		}
		result.FeeTxHash = feeTxHash
		state = sagaFeeSent
		s.logger.Debugf("saga %s: fee %f sent (%s)", state, fee, feeTxHash)

		// Chained sends from the same hot wallet need a gap so the
		// second send sees the first one's sequence number.
		s.sleep.Sleep(time.Duration(s.cfg.InterSendDelay) * time.Second)
	}

	principal := total - fee
	txHash, err := s.transfer.Send(ctx, reward.Seed, userAddress, principal)
	if err != nil {
		s.logger.Errorf("principal transfer failed: %v", err)
		if state != sagaFeeSent {
			return SagaResult{Reason: ReasonMainTransferFailed, Err: err}
		}

		state = sagaCompensating
		s.logger.Warnf("saga %s: reversing fee %f", state, fee)
		if _, cerr := s.transfer.Send(ctx, feeWallet.Seed, reward.Address, fee); cerr != nil {
			s.logger.Errorf("fee reversal failed, manual intervention required: %v", cerr)
			return SagaResult{
				FeeTxHash:          result.FeeTxHash,
				Reason:             ReasonMainFailedFeeRecoveryFailed,
				ManualIntervention: true,
				Err:                err,
			}
		}
		return SagaResult{
			FeeTxHash: result.FeeTxHash,
			Reason:    ReasonMainFailedFeeRecovered,
			Err:       err,
		}
	}

	state = sagaPrincipalSent
	result.TxHash = txHash
	s.logger.Debugf("saga %s: principal %f sent (%s)", state, principal, txHash)

	state = sagaDone
	s.logger.Infof("saga %s: disbursed %f (fee %f)", state, total, fee)
	return result
}
