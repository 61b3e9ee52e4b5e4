package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/velopay/remittance-service/internal/app"
	"github.com/velopay/remittance-service/internal/domain"
	"github.com/velopay/remittance-service/internal/store"
	"github.com/velopay/remittance-service/internal/wizard"
)

// apiRepoStub is an in-memory Repository for handler tests. Unused methods
// panic through the embedded nil interface.
type apiRepoStub struct {
	store.Repository

	mu        sync.Mutex
	corridors map[string]domain.CountryDescriptor
	receipts  []domain.TransferRequest
}

func newAPIRepoStub() *apiRepoStub {
	return &apiRepoStub{
		corridors: map[string]domain.CountryDescriptor{
			"IN": {Code: "IN", DisplayName: "India", CurrencyCode: "INR", FlagGlyph: "🇮🇳", UnitRate: 22.58},
		},
	}
}

func (s *apiRepoStub) FindCorridorByCode(ctx context.Context, code string) (*domain.CountryDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corridors[code]
	if !ok {
		return nil, store.ErrCorridorNotFound
	}
	return &c, nil
}

func (s *apiRepoStub) CreateRecipient(ctx context.Context, r *domain.Recipient) error {
	return nil
}

func (s *apiRepoStub) CreateReceipt(ctx context.Context, req *domain.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, *req)
	return nil
}

type corridorRates struct{}

func (corridorRates) Rate(ctx context.Context, country domain.CountryDescriptor) (float64, error) {
	return country.UnitRate, nil
}

type noopResolver struct{}

func (noopResolver) Resolve(ctx context.Context, iban string) (*domain.BankDetails, error) {
	return &domain.BankDetails{BankName: "Emirates NBD", AccountTitle: "Ahmed Al Mansouri"}, nil
}

func newTestHandlers() (*TransferHandlers, *apiRepoStub) {
	repo := newAPIRepoStub()
	service := app.NewService(repo, corridorRates{}, noopResolver{}, nil, wizard.FlatFee(1500), 30*time.Minute)
	return NewTransferHandlers(service), repo
}

// authedRequest builds a request carrying the authenticated user and chi URL
// parameters, the way the router middleware would.
func authedRequest(t *testing.T, method, target string, body interface{}, userID uuid.UUID, params map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := context.WithValue(req.Context(), authUserIDKey, userID)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func openSession(t *testing.T, h *TransferHandlers, userID uuid.UUID) uuid.UUID {
	t.Helper()
	rec := httptest.NewRecorder()
	h.OpenSessionHandler(rec, authedRequest(t, http.MethodPost, "/transfers/sessions", nil, userID, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 opening session, got %d: %s", rec.Code, rec.Body.String())
	}
	var snapshot app.SessionSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snapshot); err != nil {
		t.Fatalf("failed to decode session snapshot: %v", err)
	}
	return snapshot.SessionID
}

func sessionPath(sessionID uuid.UUID, suffix string) string {
	return fmt.Sprintf("/transfers/sessions/%s%s", sessionID, suffix)
}

func TestWizardFlowOverHTTP(t *testing.T) {
	h, repo := newTestHandlers()
	userID := uuid.New()
	sessionID := openSession(t, h, userID)
	params := map[string]string{"sessionID": sessionID.String()}

	rec := httptest.NewRecorder()
	h.SetAmountHandler(rec, authedRequest(t, http.MethodPut, sessionPath(sessionID, "/amount"), setAmountRequest{AmountFils: 10000}, userID, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 setting amount, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.SelectCountryHandler(rec, authedRequest(t, http.MethodPut, sessionPath(sessionID, "/country"), selectCountryRequest{CountryCode: "in"}, userID, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 selecting country, got %d: %s", rec.Code, rec.Body.String())
	}
	var snapshot app.SessionSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snapshot); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snapshot.ConvertedAmountMinor != 225800 {
		t.Fatalf("expected converted amount 225800, got %d", snapshot.ConvertedAmountMinor)
	}

	rec = httptest.NewRecorder()
	h.ContinueHandler(rec, authedRequest(t, http.MethodPost, sessionPath(sessionID, "/continue"), nil, userID, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 continuing, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.AttachRecipientHandler(rec, authedRequest(t, http.MethodPost, sessionPath(sessionID, "/recipient"), attachRecipientRequest{
		CreateRecipientRequest: domain.CreateRecipientRequest{
			DisplayName: "Priya Sharma",
			Identifier:  "+971501234567",
		},
	}, userID, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 attaching recipient, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.SubmitHandler(rec, authedRequest(t, http.MethodPost, sessionPath(sessionID, "/submit"), nil, userID, params))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 submitting, got %d: %s", rec.Code, rec.Body.String())
	}
	var receipt domain.TransferRequest
	if err := json.NewDecoder(rec.Body).Decode(&receipt); err != nil {
		t.Fatalf("failed to decode receipt: %v", err)
	}
	if receipt.TotalFils != 11500 {
		t.Fatalf("expected total 11500 fils, got %d", receipt.TotalFils)
	}
	if len(repo.receipts) != 1 {
		t.Fatalf("expected one persisted receipt, got %d", len(repo.receipts))
	}

	// The session is discarded after submission.
	rec = httptest.NewRecorder()
	h.GetSessionHandler(rec, authedRequest(t, http.MethodGet, sessionPath(sessionID, "/"), nil, userID, params))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after submission, got %d", rec.Code)
	}
}

func TestContinueWithoutCountryReturns422(t *testing.T) {
	h, _ := newTestHandlers()
	userID := uuid.New()
	sessionID := openSession(t, h, userID)
	params := map[string]string{"sessionID": sessionID.String()}

	rec := httptest.NewRecorder()
	h.SetAmountHandler(rec, authedRequest(t, http.MethodPut, sessionPath(sessionID, "/amount"), setAmountRequest{AmountFils: 10000}, userID, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 setting amount, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ContinueHandler(rec, authedRequest(t, http.MethodPost, sessionPath(sessionID, "/continue"), nil, userID, params))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 continuing without a country, got %d", rec.Code)
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	h, _ := newTestHandlers()
	userID := uuid.New()
	params := map[string]string{"sessionID": uuid.NewString()}

	rec := httptest.NewRecorder()
	h.GetSessionHandler(rec, authedRequest(t, http.MethodGet, "/transfers/sessions/unknown", nil, userID, params))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestSelectUnknownCountryReturns404(t *testing.T) {
	h, _ := newTestHandlers()
	userID := uuid.New()
	sessionID := openSession(t, h, userID)
	params := map[string]string{"sessionID": sessionID.String()}

	rec := httptest.NewRecorder()
	h.SelectCountryHandler(rec, authedRequest(t, http.MethodPut, sessionPath(sessionID, "/country"), selectCountryRequest{CountryCode: "XX"}, userID, params))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown corridor, got %d", rec.Code)
	}
}

func TestSessionsAreScopedToTheirOwner(t *testing.T) {
	h, _ := newTestHandlers()
	owner := uuid.New()
	stranger := uuid.New()
	sessionID := openSession(t, h, owner)
	params := map[string]string{"sessionID": sessionID.String()}

	rec := httptest.NewRecorder()
	h.GetSessionHandler(rec, authedRequest(t, http.MethodGet, sessionPath(sessionID, "/"), nil, stranger, params))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's session, got %d", rec.Code)
	}
}
