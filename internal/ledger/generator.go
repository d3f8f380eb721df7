package ledger

import (
	"github.com/th3noryx/riskengine/internal/event"
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from events
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Add reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence resets the generator's internal sequence counter, used when
// restoring from a snapshot.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// GenerateDepositInitiated creates journals for a pending deposit.
// Moves funds: external:deposits → user:pending_deposit
func (jg *JournalGenerator) GenerateDepositInitiated(
	evt *event.DepositInitiated,
	assetID AssetID,
) (*Batch, error) {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  evt.DepositID.String(),
		Sequence:  jg.sequence,
		Timestamp: evt.Timestamp.UnixMicro(),
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.DepositID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(evt.UserID, SubTypePendingDeposit, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        evt.Amount,
		JournalType:   JournalTypeDepositPending,
		Timestamp:     evt.Timestamp.UnixMicro(),
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateDepositConfirmed creates journals for a confirmed deposit.
// Moves funds: external:deposits → user:collateral
// (If a pending deposit exists, it should be cleared separately.)
func (jg *JournalGenerator) GenerateDepositConfirmed(
	evt *event.DepositConfirmed,
	assetID AssetID,
) (*Batch, error) {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  evt.DepositID.String(),
		Sequence:  jg.sequence,
		Timestamp: evt.Timestamp.UnixMicro(),
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.DepositID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(evt.UserID, SubTypeCollateral, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        evt.Amount,
		JournalType:   JournalTypeDepositConfirm,
		Timestamp:     evt.Timestamp.UnixMicro(),
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateWithdrawalRequested creates journals for withdrawal request.
// Pre-check: user must have sufficient available balance (BS-01, BS-07).
func (jg *JournalGenerator) GenerateWithdrawalRequested(
	userID uuid.UUID,
	withdrawalID uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	// PRE-CHECK: Validate sufficient available balance (BS-07)
	if err := jg.balanceTracker.ValidateSufficientAvailable(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  withdrawalID.String(),
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	// Lock funds: user:collateral -> user:pending_withdrawal
	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      withdrawalID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(userID, SubTypePendingWithdrawal, assetID),
		CreditAccount: NewUserAccountKey(userID, SubTypeCollateral, assetID),
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeWithdrawalPending,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateWithdrawalConfirmed finalizes withdrawal (clears pending)
func (jg *JournalGenerator) GenerateWithdrawalConfirmed(
	userID uuid.UUID,
	withdrawalID uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  withdrawalID.String(),
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	// Finalize: user:pending_withdrawal -> external:withdrawals
	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      withdrawalID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		CreditAccount: NewUserAccountKey(userID, SubTypePendingWithdrawal, assetID),
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeWithdrawalConfirm,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateWithdrawalRejected reverses pending withdrawal
func (jg *JournalGenerator) GenerateWithdrawalRejected(
	userID uuid.UUID,
	withdrawalID uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  withdrawalID.String(),
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	// Reverse: user:pending_withdrawal -> user:collateral
	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      withdrawalID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewUserAccountKey(userID, SubTypeCollateral, assetID),
		CreditAccount: NewUserAccountKey(userID, SubTypePendingWithdrawal, assetID),
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeWithdrawalReject,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

