/**
 * @description
 * This file contains the HTTP handlers for the remittance-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and translate domain errors into HTTP status codes: wizard guard failures
 * become 422 so the client can surface them inline, unknown or expired
 * sessions become 404, and duplicate submissions become 409.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/google/uuid: Session and recipient identifiers.
 * - internal/app, internal/domain, internal/store: Service logic, models, and
 *   custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/velopay/remittance-service/internal/app"
	"github.com/velopay/remittance-service/internal/domain"
	"github.com/velopay/remittance-service/internal/store"
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

type setAmountRequest struct {
	AmountFils int64 `json:"amount_fils"`
}

type selectCountryRequest struct {
	CountryCode string `json:"country_code"`
}

// attachRecipientRequest attaches a saved recipient when RecipientID is set,
// otherwise creates a new one from the free-text identifier fields.
type attachRecipientRequest struct {
	RecipientID *uuid.UUID `json:"recipient_id,omitempty"`
	domain.CreateRecipientRequest
}

type setFavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// ListCorridorsHandler returns the destination corridor reference table.
func (h *TransferHandlers) ListCorridorsHandler(w http.ResponseWriter, r *http.Request) {
	corridors, err := h.service.ListCorridors(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_corridors err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not load destination countries")
		return
	}
	h.writeJSON(w, http.StatusOK, corridors)
}

// ListRecipientsHandler returns the caller's saved recipients, favorites
// first, optionally filtered by a search term.
func (h *TransferHandlers) ListRecipientsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	recipients, err := h.service.ListRecipients(r.Context(), userID, search)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_recipients user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not load recipients")
		return
	}
	h.writeJSON(w, http.StatusOK, recipients)
}

// SetRecipientFavoriteHandler pins or unpins a saved recipient.
func (h *TransferHandlers) SetRecipientFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	recipientID, err := uuid.Parse(chi.URLParam(r, "recipientID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid recipient ID")
		return
	}
	var req setFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := h.service.SetRecipientFavorite(r.Context(), userID, recipientID, req.Favorite); err != nil {
		h.writeServiceError(w, "set_recipient_favorite", userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenSessionHandler starts a fresh wizard session for one transfer attempt.
func (h *TransferHandlers) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	sessionID := h.service.OpenSession(userID)
	log.Printf("level=info component=api endpoint=open_session user_id=%s session_id=%s", userID, sessionID)
	snapshot, err := h.service.Snapshot(userID, sessionID)
	if err != nil {
		h.writeServiceError(w, "open_session", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, snapshot)
}

// GetSessionHandler returns the current wizard state for rendering.
func (h *TransferHandlers) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	snapshot, err := h.service.Snapshot(userID, sessionID)
	if err != nil {
		h.writeServiceError(w, "get_session", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// CloseSessionHandler discards a draft without submitting it.
func (h *TransferHandlers) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	if err := h.service.CloseSession(userID, sessionID); err != nil {
		h.writeServiceError(w, "close_session", userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetAmountHandler records the source amount on the draft.
func (h *TransferHandlers) SetAmountHandler(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	var req setAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := h.service.SetAmount(userID, sessionID, req.AmountFils); err != nil {
		h.writeServiceError(w, "set_amount", userID, err)
		return
	}
	h.writeSnapshot(w, userID, sessionID)
}

// SelectCountryHandler sets the destination corridor and fetches its rate.
func (h *TransferHandlers) SelectCountryHandler(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	var req selectCountryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := h.service.SelectCountry(r.Context(), userID, sessionID, strings.ToUpper(strings.TrimSpace(req.CountryCode))); err != nil {
		h.writeServiceError(w, "select_country", userID, err)
		return
	}
	h.writeSnapshot(w, userID, sessionID)
}

// ContinueHandler advances the wizard from the amount stage to the
// beneficiary stage.
func (h *TransferHandlers) ContinueHandler(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	if err := h.service.AdvanceToBeneficiary(userID, sessionID); err != nil {
		h.writeServiceError(w, "continue", userID, err)
		return
	}
	h.writeSnapshot(w, userID, sessionID)
}

// BackHandler moves the wizard to the immediately preceding stage.
func (h *TransferHandlers) BackHandler(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	if err := h.service.Back(userID, sessionID); err != nil {
		h.writeServiceError(w, "back", userID, err)
		return
	}
	h.writeSnapshot(w, userID, sessionID)
}

// AttachRecipientHandler attaches a saved recipient by ID, or classifies a
// free-text identifier and creates a new one.
func (h *TransferHandlers) AttachRecipientHandler(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	var req attachRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if req.RecipientID != nil {
		if err := h.service.AttachExistingRecipient(r.Context(), userID, sessionID, *req.RecipientID); err != nil {
			h.writeServiceError(w, "attach_recipient", userID, err)
			return
		}
		h.writeSnapshot(w, userID, sessionID)
		return
	}

	recipient, err := h.service.CreateAndAttachRecipient(r.Context(), userID, sessionID, req.CreateRecipientRequest)
	if err != nil {
		h.writeServiceError(w, "attach_recipient", userID, err)
		return
	}
	log.Printf("level=info component=api endpoint=attach_recipient user_id=%s recipient_id=%s kind=%s", userID, recipient.ID, recipient.IdentifierType)
	h.writeSnapshot(w, userID, sessionID)
}

// SubmitHandler finalizes the draft and returns the receipt.
func (h *TransferHandlers) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.Submit(r.Context(), userID, sessionID)
	if err != nil {
		h.writeServiceError(w, "submit", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, receipt)
}

// ListReceiptsHandler returns the caller's submitted transfers, newest first.
func (h *TransferHandlers) ListReceiptsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_receipts user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not load receipts")
		return
	}
	h.writeJSON(w, http.StatusOK, receipts)
}

// GetReceiptHandler returns a single submitted transfer by reference.
func (h *TransferHandlers) GetReceiptHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	reference, err := uuid.Parse(chi.URLParam(r, "reference"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid receipt reference")
		return
	}
	receipt, err := h.service.GetReceipt(r.Context(), userID, reference)
	if err != nil {
		h.writeServiceError(w, "get_receipt", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

// authUserID pulls the authenticated caller's UUID out of the context.
func (h *TransferHandlers) authUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	return userID, true
}

// sessionScope resolves the caller's UUID and the session ID URL parameter.
func (h *TransferHandlers) sessionScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid session ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}

// writeSnapshot returns the post-mutation wizard state so the client always
// renders from the server's view of the draft.
func (h *TransferHandlers) writeSnapshot(w http.ResponseWriter, userID, sessionID uuid.UUID) {
	snapshot, err := h.service.Snapshot(userID, sessionID)
	if err != nil {
		h.writeServiceError(w, "snapshot", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// writeServiceError maps service and domain errors onto HTTP status codes.
func (h *TransferHandlers) writeServiceError(w http.ResponseWriter, endpoint string, userID uuid.UUID, err error) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound) || errors.Is(err, app.ErrSessionExpired):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrCorridorNotFound) ||
		errors.Is(err, store.ErrRecipientNotFound) ||
		errors.Is(err, store.ErrReceiptNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadySubmitted) || errors.Is(err, domain.ErrSubmitInFlight):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrNoCountry) ||
		errors.Is(err, domain.ErrNoRecipient) ||
		errors.Is(err, domain.ErrInvalidStage) ||
		errors.Is(err, domain.ErrUnclassifiedIdentifier) ||
		errors.Is(err, domain.ErrMissingAccountTitle) ||
		errors.Is(err, domain.ErrRecipientCountryChanged):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s user_id=%s err=%v", endpoint, userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return value, nil
}
