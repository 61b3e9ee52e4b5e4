/**
 * @description
 * This file implements the send-money wizard: a linear three-stage state
 * machine (amount -> beneficiary -> confirmation) that owns one in-progress
 * transfer draft, enforces the stage guards, and produces a TransferRequest
 * at submission. The wizard never executes a transfer; handing the request
 * to the execution rail is the caller's responsibility.
 *
 * Key features:
 * - Stage transitions are guarded: the beneficiary stage requires a positive
 *   amount and a selected country, confirmation additionally requires a
 *   recipient. Back steps go only to the immediately preceding stage.
 * - The exchange-rate lookup is an injected, fallible dependency. Lookups
 *   are single-flight per country selection: selecting a different country
 *   cancels the in-flight lookup, and a stale result never overwrites a
 *   newer selection.
 * - Submission is guarded against re-entry; a submitted draft is terminal.
 *
 * @dependencies
 * - context, sync, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction reference generation.
 * - internal/domain: For the draft, recipient, and transfer request models.
 */

package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/velopay/remittance-service/internal/domain"
)

// RateLookup resolves the unit conversion rate for a destination country.
// Implementations may hit the network; they must honor ctx cancellation.
type RateLookup interface {
	Rate(ctx context.Context, country domain.CountryDescriptor) (float64, error)
}

// BankResolver resolves full bank details for an IBAN. Implementations may
// fail, time out, or return not-found; the wizard treats all of those as a
// blocked recipient creation, never a crash.
type BankResolver interface {
	Resolve(ctx context.Context, iban string) (*domain.BankDetails, error)
}

// FeePolicy computes the fee for a draft. Modeled as a function of amount
// and destination so tiered pricing can slot in without touching the wizard.
type FeePolicy func(amountFils int64, country domain.CountryDescriptor) int64

// FlatFee returns a FeePolicy charging the same fee for every transfer.
func FlatFee(feeFils int64) FeePolicy {
	return func(int64, domain.CountryDescriptor) int64 { return feeFils }
}

// Wizard drives one transfer attempt. It is safe for concurrent use; every
// exported method takes the wizard's lock, matching the one-event-at-a-time
// interaction model of the client.
type Wizard struct {
	mu    sync.Mutex
	draft domain.TransferDraft

	senderID uuid.UUID
	rates    RateLookup
	fee      FeePolicy

	// rate lookup single-flight state
	lookupCancel context.CancelFunc
	lookupGen    uint64

	submitting bool
}

// New creates a wizard positioned at the amount stage with an empty draft.
func New(senderID uuid.UUID, rates RateLookup, fee FeePolicy) *Wizard {
	return &Wizard{
		senderID: senderID,
		rates:    rates,
		fee:      fee,
		draft:    domain.TransferDraft{Stage: domain.StageAmount},
	}
}

// Draft returns a snapshot of the current draft.
func (w *Wizard) Draft() domain.TransferDraft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// SetAmount records the source amount. Only valid at the amount stage.
func (w *Wizard) SetAmount(amountFils int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Submitted {
		return domain.ErrAlreadySubmitted
	}
	if w.draft.Stage != domain.StageAmount {
		return domain.ErrInvalidStage
	}
	if amountFils <= 0 {
		return domain.ErrInvalidAmount
	}
	w.draft.SourceAmountFils = amountFils
	return nil
}

// SelectCountry records the destination country and resolves its unit rate
// through the injected lookup. If a lookup for a previous selection is still
// in flight it is cancelled; if the lookup for this selection loses to a
// newer selection, its result is discarded.
func (w *Wizard) SelectCountry(ctx context.Context, country domain.CountryDescriptor) error {
	w.mu.Lock()
	if w.draft.Submitted {
		w.mu.Unlock()
		return domain.ErrAlreadySubmitted
	}
	if w.draft.Stage != domain.StageAmount {
		w.mu.Unlock()
		return domain.ErrInvalidStage
	}

	// Cancel any in-flight lookup for an earlier selection.
	if w.lookupCancel != nil {
		w.lookupCancel()
		w.lookupCancel = nil
	}
	w.lookupGen++
	gen := w.lookupGen

	lookupCtx, cancel := context.WithCancel(ctx)
	w.lookupCancel = cancel
	w.mu.Unlock()

	rate, err := w.rates.Rate(lookupCtx, country)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lookupGen != gen {
		// A newer selection superseded this lookup; drop the result.
		return context.Canceled
	}
	w.lookupCancel = nil
	if err != nil {
		return fmt.Errorf("rate lookup for %s failed: %w", country.Code, err)
	}

	country.UnitRate = rate
	w.draft.Country = &country

	// A recipient chosen for a different corridor must be re-selected.
	if w.draft.Recipient != nil && w.draft.Recipient.Country != nil &&
		w.draft.Recipient.Country.Code != country.Code {
		w.draft.Recipient = nil
	}
	return nil
}

// AdvanceToBeneficiary moves the wizard past the amount stage. Guarded by a
// positive amount and a selected country.
func (w *Wizard) AdvanceToBeneficiary() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Submitted {
		return domain.ErrAlreadySubmitted
	}
	if w.draft.Stage != domain.StageAmount {
		return domain.ErrInvalidStage
	}
	if w.draft.SourceAmountFils <= 0 {
		return domain.ErrInvalidAmount
	}
	if w.draft.Country == nil {
		return domain.ErrNoCountry
	}
	w.draft.FeeFils = w.fee(w.draft.SourceAmountFils, *w.draft.Country)
	w.draft.Stage = domain.StageBeneficiary
	return nil
}

// AttachRecipient attaches a recipient to the draft and advances to the
// confirmation stage. The recipient must belong to the draft's corridor.
func (w *Wizard) AttachRecipient(r domain.Recipient) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Submitted {
		return domain.ErrAlreadySubmitted
	}
	if w.draft.Stage != domain.StageBeneficiary {
		return domain.ErrInvalidStage
	}
	if w.draft.Country == nil {
		return domain.ErrNoCountry
	}
	if r.Country != nil && r.Country.Code != w.draft.Country.Code {
		return domain.ErrRecipientCountryChanged
	}
	w.draft.Recipient = &r
	w.draft.Stage = domain.StageConfirmation
	return nil
}

// Back moves the wizard to the immediately preceding stage. Leaving the
// confirmation stage keeps the attached recipient so the user only
// re-selects when they actually want somebody else.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Submitted {
		return domain.ErrAlreadySubmitted
	}
	switch w.draft.Stage {
	case domain.StageConfirmation:
		w.draft.Stage = domain.StageBeneficiary
	case domain.StageBeneficiary:
		w.draft.Stage = domain.StageAmount
	default:
		return domain.ErrInvalidStage
	}
	return nil
}

// Submit finalizes the draft into a TransferRequest and hands it to
// finalize (the caller's persist-and-publish step). Only valid at the
// confirmation stage. The submission-in-flight guard rejects re-entry while
// finalize runs; the draft becomes terminal only when finalize succeeds, so
// a failed handoff can be retried. A nil finalize submits unconditionally.
func (w *Wizard) Submit(ctx context.Context, finalize func(*domain.TransferRequest) error) (*domain.TransferRequest, error) {
	w.mu.Lock()
	if w.draft.Submitted {
		w.mu.Unlock()
		return nil, domain.ErrAlreadySubmitted
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, domain.ErrSubmitInFlight
	}
	if w.draft.Stage != domain.StageConfirmation {
		w.mu.Unlock()
		return nil, domain.ErrInvalidStage
	}
	if w.draft.Recipient == nil {
		w.mu.Unlock()
		return nil, domain.ErrNoRecipient
	}
	w.submitting = true
	draft := w.draft
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.submitting = false
		w.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := &domain.TransferRequest{
		TransactionReference: uuid.New(),
		SenderID:             w.senderID,
		SourceAmountFils:     draft.SourceAmountFils,
		FeeFils:              draft.FeeFils,
		TotalFils:            draft.TotalFils(),
		ConvertedAmountMinor: draft.ConvertedAmountMinor(),
		Country:              *draft.Country,
		Recipient:            *draft.Recipient,
		Status:               domain.ReceiptStatusSubmitted,
		SubmittedAt:          time.Now().UTC(),
	}

	if finalize != nil {
		if err := finalize(req); err != nil {
			return nil, err
		}
	}

	w.mu.Lock()
	w.draft.Submitted = true
	w.mu.Unlock()
	return req, nil
}
