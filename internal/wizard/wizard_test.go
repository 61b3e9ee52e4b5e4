package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/velopay/remittance-service/internal/domain"
)

// staticRates serves rates from a fixed table, recording how many lookups
// were made per country code.
type staticRates struct {
	mu    sync.Mutex
	rates map[string]float64
	calls map[string]int
	delay time.Duration
}

func newStaticRates(rates map[string]float64) *staticRates {
	return &staticRates{rates: rates, calls: make(map[string]int)}
}

func (s *staticRates) Rate(ctx context.Context, country domain.CountryDescriptor) (float64, error) {
	s.mu.Lock()
	s.calls[country.Code]++
	rate, ok := s.rates[country.Code]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if !ok {
		return 0, errors.New("no rate for corridor")
	}
	return rate, nil
}

func india() domain.CountryDescriptor {
	return domain.CountryDescriptor{Code: "IN", DisplayName: "India", CurrencyCode: "INR", FlagGlyph: "🇮🇳"}
}

func pakistan() domain.CountryDescriptor {
	return domain.CountryDescriptor{Code: "PK", DisplayName: "Pakistan", CurrencyCode: "PKR", FlagGlyph: "🇵🇰"}
}

func mobileRecipient(country domain.CountryDescriptor) domain.Recipient {
	return domain.Recipient{
		ID:             uuid.New(),
		DisplayName:    "Ravi Kumar",
		IdentifierType: domain.IdentifierMobileNumber,
		Identifier:     "+919876543210",
		Country:        &country,
	}
}

func newTestWizard(t *testing.T, rates RateLookup) *Wizard {
	t.Helper()
	return New(uuid.New(), rates, FlatFee(1500))
}

func TestAdvanceToBeneficiaryRequiresAmountAndCountry(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if err := w.AdvanceToBeneficiary(); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount with empty draft, got %v", err)
	}
	if err := w.SetAmount(10000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); !errors.Is(err, domain.ErrNoCountry) {
		t.Fatalf("expected ErrNoCountry without a selected country, got %v", err)
	}
	if got := w.Draft().Stage; got != domain.StageAmount {
		t.Fatalf("rejected transition must not move the stage, got %q", got)
	}

	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}
	if got := w.Draft().Stage; got != domain.StageBeneficiary {
		t.Fatalf("expected beneficiary stage, got %q", got)
	}
}

func TestSetAmountRejectsNonPositive(t *testing.T) {
	w := newTestWizard(t, newStaticRates(nil))
	for _, amount := range []int64{0, -500} {
		if err := w.SetAmount(amount); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("SetAmount(%d) = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestConvertedAmountRoundsHalfUp(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	// 100 AED at 22.58 must display as exactly 2258.00 INR.
	if err := w.SetAmount(10000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if got := w.Draft().ConvertedAmountMinor(); got != 225800 {
		t.Fatalf("converted amount = %d minor units, want 225800", got)
	}
}

func TestDraftSnapshotExposesDerivedValues(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(10000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}

	// Derived values must be readable straight off the snapshot value.
	if got := w.Draft().ConvertedAmountMinor(); got != 225800 {
		t.Fatalf("converted amount = %d, want 225800", got)
	}
	if got := w.Draft().TotalFils(); got != 11500 {
		t.Fatalf("total = %d, want 11500", got)
	}
}

func TestTotalIsAmountPlusFee(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(25000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}
	d := w.Draft()
	if d.FeeFils != 1500 {
		t.Fatalf("fee = %d, want 1500", d.FeeFils)
	}
	if got := d.TotalFils(); got != 26500 {
		t.Fatalf("total = %d, want 26500", got)
	}
}

func TestBackStepsKeepRecipient(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(10000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}
	if err := w.AttachRecipient(mobileRecipient(*w.Draft().Country)); err != nil {
		t.Fatalf("AttachRecipient: %v", err)
	}
	if got := w.Draft().Stage; got != domain.StageConfirmation {
		t.Fatalf("expected confirmation stage, got %q", got)
	}

	if err := w.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	d := w.Draft()
	if d.Stage != domain.StageBeneficiary {
		t.Fatalf("expected beneficiary stage after back, got %q", d.Stage)
	}
	if d.Recipient == nil {
		t.Fatal("back from confirmation must not clear the recipient")
	}

	if err := w.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if got := w.Draft().Stage; got != domain.StageAmount {
		t.Fatalf("expected amount stage after second back, got %q", got)
	}
	if err := w.Back(); !errors.Is(err, domain.ErrInvalidStage) {
		t.Fatalf("back past the amount stage must fail, got %v", err)
	}
}

func TestChangingCountryClearsMismatchedRecipient(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58, "PK": 76.10})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(10000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}
	if err := w.AttachRecipient(mobileRecipient(*w.Draft().Country)); err != nil {
		t.Fatalf("AttachRecipient: %v", err)
	}

	// Edit all the way back and pick a different corridor.
	if err := w.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if err := w.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if err := w.SelectCountry(context.Background(), pakistan()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if w.Draft().Recipient != nil {
		t.Fatal("recipient selected for a different corridor must be cleared")
	}
}

func TestAttachRecipientRejectsForeignCorridor(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(10000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}
	pk := pakistan()
	if err := w.AttachRecipient(mobileRecipient(pk)); !errors.Is(err, domain.ErrRecipientCountryChanged) {
		t.Fatalf("expected ErrRecipientCountryChanged, got %v", err)
	}
}

func TestSelectCountryCancelsSupersededLookup(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58, "PK": 76.10})
	rates.delay = 200 * time.Millisecond
	w := newTestWizard(t, rates)

	if err := w.SetAmount(10000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- w.SelectCountry(context.Background(), india())
	}()

	// Let the first lookup get in flight, then supersede it.
	time.Sleep(50 * time.Millisecond)
	rates.mu.Lock()
	rates.delay = 0
	rates.mu.Unlock()
	if err := w.SelectCountry(context.Background(), pakistan()); err != nil {
		t.Fatalf("second SelectCountry: %v", err)
	}

	if err := <-firstDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("superseded lookup should report cancellation, got %v", err)
	}
	d := w.Draft()
	if d.Country == nil || d.Country.Code != "PK" {
		t.Fatalf("draft country = %+v, want PK", d.Country)
	}
	if d.Country.UnitRate != 76.10 {
		t.Fatalf("draft rate = %v, want 76.10", d.Country.UnitRate)
	}
}

func TestSelectCountryPropagatesLookupFailure(t *testing.T) {
	rates := newStaticRates(map[string]float64{})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(10000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err == nil {
		t.Fatal("expected rate lookup failure to propagate")
	}
	if w.Draft().Country != nil {
		t.Fatal("failed lookup must not set the draft country")
	}
}

func TestSubmitGuards(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if _, err := w.Submit(context.Background(), nil); !errors.Is(err, domain.ErrInvalidStage) {
		t.Fatalf("submit before confirmation must fail, got %v", err)
	}

	if err := w.SetAmount(25000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}
	if err := w.AttachRecipient(mobileRecipient(*w.Draft().Country)); err != nil {
		t.Fatalf("AttachRecipient: %v", err)
	}

	req, err := w.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.TransactionReference == uuid.Nil {
		t.Fatal("submit must generate a transaction reference")
	}
	if _, err := w.Submit(context.Background(), nil); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("second submit must fail, got %v", err)
	}
	if err := w.SetAmount(100); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("editing a submitted draft must fail, got %v", err)
	}
}

func TestSubmitFailedFinalizeIsRetryable(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(25000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}
	if err := w.AttachRecipient(mobileRecipient(*w.Draft().Country)); err != nil {
		t.Fatalf("AttachRecipient: %v", err)
	}

	boom := errors.New("handoff failed")
	if _, err := w.Submit(context.Background(), func(*domain.TransferRequest) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected finalize error, got %v", err)
	}
	if w.Draft().Submitted {
		t.Fatal("failed finalize must not mark the draft submitted")
	}
	if _, err := w.Submit(context.Background(), nil); err != nil {
		t.Fatalf("retry after failed finalize: %v", err)
	}
}

func TestSubmitRejectsReentryWhileFinalizing(t *testing.T) {
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(25000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}
	if err := w.AttachRecipient(mobileRecipient(*w.Draft().Country)); err != nil {
		t.Fatalf("AttachRecipient: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), func(*domain.TransferRequest) error {
			close(entered)
			<-release
			return nil
		})
		firstDone <- err
	}()

	<-entered
	if _, err := w.Submit(context.Background(), nil); !errors.Is(err, domain.ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight during finalize, got %v", err)
	}
	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first submit: %v", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	// Amount 250 AED, corridor India at 22.58, new mobile beneficiary.
	rates := newStaticRates(map[string]float64{"IN": 22.58})
	w := newTestWizard(t, rates)

	if err := w.SetAmount(25000); err != nil {
		t.Fatalf("SetAmount: %v", err)
	}
	if err := w.SelectCountry(context.Background(), india()); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if err := w.AdvanceToBeneficiary(); err != nil {
		t.Fatalf("AdvanceToBeneficiary: %v", err)
	}

	if kind := domain.ClassifyIdentifier("+919876543210"); kind != domain.IdentifierMobileNumber {
		t.Fatalf("identifier classified as %q, want mobile", kind)
	}
	if err := w.AttachRecipient(mobileRecipient(*w.Draft().Country)); err != nil {
		t.Fatalf("AttachRecipient: %v", err)
	}

	req, err := w.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.ConvertedAmountMinor != 564500 {
		t.Fatalf("converted amount = %d, want 564500 (5645.00 INR)", req.ConvertedAmountMinor)
	}
	if req.TotalFils != 25000+1500 {
		t.Fatalf("total = %d, want %d", req.TotalFils, 25000+1500)
	}
	if req.Recipient.IdentifierType != domain.IdentifierMobileNumber {
		t.Fatalf("recipient kind = %q, want mobile", req.Recipient.IdentifierType)
	}
	if req.Status != domain.ReceiptStatusSubmitted {
		t.Fatalf("status = %q, want submitted", req.Status)
	}
}
