/**
 * @description
 * This file contains the core business logic for the remittance-service. The
 * `Service` struct owns the in-memory send-money wizard sessions, attaches
 * recipients (classified from free text or loaded from the saved list), and
 * hands submitted transfer requests to the receipt store and the event
 * producer for the external execution rail.
 *
 * Key features:
 * - Wizard drafts are ephemeral: they live in memory for one transfer
 *   attempt and are discarded on session close or idle expiry; only the
 *   submitted receipt is persisted.
 * - Recipient creation runs the identifier classifier, resolves IBANs
 *   through the injected BankResolver, and enforces the required-field
 *   guard on manually entered bank accounts.
 * - Submission publishes a transfer.submitted event; publish failures are
 *   logged, not propagated, since execution is the rail's responsibility.
 *
 * @dependencies
 * - context, errors, fmt, log, sync, time: Standard Go libraries.
 * - github.com/google/uuid: For session and recipient identifiers.
 * - internal/domain, internal/store, internal/wizard: Domain models, data
 *   access, and the wizard state machine.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/velopay/remittance-service/internal/domain"
	"github.com/velopay/remittance-service/internal/store"
	"github.com/velopay/remittance-service/internal/wizard"
	"github.com/velopay/remittance-service/pkg/rabbitmq"
)

const (
	// DefaultTransferEventExchange is the topic exchange submitted transfers
	// are announced on unless configured otherwise.
	DefaultTransferEventExchange = "remit.events"
	// TransferSubmittedKey is the routing key for submitted transfers.
	TransferSubmittedKey = "transfer.submitted"
)

// Session lifecycle errors.
var (
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrSessionExpired  = errors.New("wizard session expired")
)

// session pairs a wizard with its owner and last-touch time for idle expiry.
type session struct {
	id       uuid.UUID
	userID   uuid.UUID
	wizard   *wizard.Wizard
	lastUsed time.Time
}

// Service provides the core business logic for the send-money flow.
type Service struct {
	repo          store.Repository
	rates         wizard.RateLookup
	banks         wizard.BankResolver
	eventProducer rabbitmq.Publisher
	eventExchange string
	fee           wizard.FeePolicy

	sessionTTL time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewService creates a new remittance service instance.
func NewService(
	repo store.Repository,
	rates wizard.RateLookup,
	banks wizard.BankResolver,
	producer rabbitmq.Publisher,
	fee wizard.FeePolicy,
	sessionTTL time.Duration,
) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 30 * time.Minute
	}
	return &Service{
		repo:          repo,
		rates:         rates,
		banks:         banks,
		eventProducer: producer,
		eventExchange: DefaultTransferEventExchange,
		fee:           fee,
		sessionTTL:    sessionTTL,
		sessions:      make(map[uuid.UUID]*session),
	}
}

// SetEventExchange overrides the topic exchange submitted transfers are
// published on. A blank name keeps the default.
func (s *Service) SetEventExchange(name string) {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		s.eventExchange = trimmed
	}
}

// ListCorridors returns the destination corridor reference table.
func (s *Service) ListCorridors(ctx context.Context) ([]domain.CountryDescriptor, error) {
	return s.repo.ListCorridors(ctx)
}

// ListRecipients returns the user's saved recipients, favorites first.
func (s *Service) ListRecipients(ctx context.Context, userID uuid.UUID, search string) ([]domain.Recipient, error) {
	return s.repo.ListRecipientsByUserID(ctx, userID, search)
}

// OpenSession starts a fresh wizard session for one transfer attempt.
func (s *Service) OpenSession(userID uuid.UUID) uuid.UUID {
	sess := &session{
		id:       uuid.New(),
		userID:   userID,
		wizard:   wizard.New(userID, s.rates, s.fee),
		lastUsed: time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess.id
}

// CloseSession discards a draft without submitting it.
func (s *Service) CloseSession(userID, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.userID != userID {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// lookupSession finds a live session owned by the user, refreshing its
// idle timer. Expired sessions are dropped on access.
func (s *Service) lookupSession(userID, sessionID uuid.UUID) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.userID != userID {
		return nil, ErrSessionNotFound
	}
	if time.Since(sess.lastUsed) > s.sessionTTL {
		delete(s.sessions, sessionID)
		return nil, ErrSessionExpired
	}
	sess.lastUsed = time.Now()
	return sess, nil
}

// SweepExpiredSessions drops sessions idle past the TTL. Called periodically
// from the scheduler.
func (s *Service) SweepExpiredSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if time.Since(sess.lastUsed) > s.sessionTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// SessionSnapshot is the state the client renders: the draft plus derived
// display values.
type SessionSnapshot struct {
	SessionID            uuid.UUID            `json:"session_id"`
	Draft                domain.TransferDraft `json:"draft"`
	ConvertedAmountMinor int64                `json:"converted_amount_minor"`
	TotalFils            int64                `json:"total_fils"`
}

// Snapshot returns the current wizard state for rendering.
func (s *Service) Snapshot(userID, sessionID uuid.UUID) (*SessionSnapshot, error) {
	sess, err := s.lookupSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	draft := sess.wizard.Draft()
	return &SessionSnapshot{
		SessionID:            sessionID,
		Draft:                draft,
		ConvertedAmountMinor: draft.ConvertedAmountMinor(),
		TotalFils:            draft.TotalFils(),
	}, nil
}

// SetAmount records the source amount on the draft.
func (s *Service) SetAmount(userID, sessionID uuid.UUID, amountFils int64) error {
	sess, err := s.lookupSession(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.wizard.SetAmount(amountFils)
}

// SelectCountry resolves the corridor from the reference table and lets the
// wizard fetch its rate through the injected lookup.
func (s *Service) SelectCountry(ctx context.Context, userID, sessionID uuid.UUID, countryCode string) error {
	sess, err := s.lookupSession(userID, sessionID)
	if err != nil {
		return err
	}
	corridor, err := s.repo.FindCorridorByCode(ctx, countryCode)
	if err != nil {
		return err
	}
	return sess.wizard.SelectCountry(ctx, *corridor)
}

// AdvanceToBeneficiary moves the wizard past the amount stage.
func (s *Service) AdvanceToBeneficiary(userID, sessionID uuid.UUID) error {
	sess, err := s.lookupSession(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.wizard.AdvanceToBeneficiary()
}

// Back moves the wizard to the immediately preceding stage.
func (s *Service) Back(userID, sessionID uuid.UUID) error {
	sess, err := s.lookupSession(userID, sessionID)
	if err != nil {
		return err
	}
	return sess.wizard.Back()
}

// AttachExistingRecipient attaches a saved recipient to the draft.
func (s *Service) AttachExistingRecipient(ctx context.Context, userID, sessionID, recipientID uuid.UUID) error {
	sess, err := s.lookupSession(userID, sessionID)
	if err != nil {
		return err
	}
	recipient, err := s.repo.FindRecipientByID(ctx, recipientID, userID)
	if err != nil {
		return err
	}
	return sess.wizard.AttachRecipient(*recipient)
}

// CreateAndAttachRecipient classifies a free-text identifier, builds the
// recipient (resolving bank details for IBANs), persists it to the saved
// list, and attaches it to the draft.
func (s *Service) CreateAndAttachRecipient(ctx context.Context, userID, sessionID uuid.UUID, req domain.CreateRecipientRequest) (*domain.Recipient, error) {
	sess, err := s.lookupSession(userID, sessionID)
	if err != nil {
		return nil, err
	}

	recipient, err := s.buildRecipient(ctx, userID, sess.wizard.Draft().Country, req)
	if err != nil {
		return nil, err
	}

	if err := sess.wizard.AttachRecipient(*recipient); err != nil {
		return nil, err
	}
	if err := s.repo.CreateRecipient(ctx, recipient); err != nil {
		// The draft already holds the recipient; a failed save only costs
		// the user the saved-list entry.
		log.Printf("level=warn component=app msg=\"recipient save failed\" user_id=%s err=%v", userID, err)
	}
	return recipient, nil
}

func (s *Service) buildRecipient(ctx context.Context, userID uuid.UUID, country *domain.CountryDescriptor, req domain.CreateRecipientRequest) (*domain.Recipient, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, errors.New("display name is required")
	}
	identifier := strings.TrimSpace(req.Identifier)

	kind := domain.ClassifyDeclared(identifier, req.DeclaredKind)
	recipient := &domain.Recipient{
		ID:             uuid.New(),
		UserID:         userID,
		DisplayName:    displayName,
		IdentifierType: kind,
		Identifier:     identifier,
		Country:        country,
		CreatedAt:      time.Now().UTC(),
	}

	switch kind {
	case domain.IdentifierIBAN:
		details, err := s.banks.Resolve(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("bank details lookup failed: %w", err)
		}
		recipient.BankDetails = details
	case domain.IdentifierMobileNumber:
		// No further lookup for mobile wallets.
	case domain.IdentifierBankAccount:
		if strings.TrimSpace(req.AccountTitle) == "" {
			return nil, domain.ErrMissingAccountTitle
		}
		recipient.BankDetails = &domain.BankDetails{
			BankName:     strings.TrimSpace(req.BankName),
			AccountTitle: strings.TrimSpace(req.AccountTitle),
			SwiftCode:    strings.TrimSpace(req.SwiftCode),
			Branch:       strings.TrimSpace(req.Branch),
			Address:      strings.TrimSpace(req.Address),
		}
	default:
		return nil, domain.ErrUnclassifiedIdentifier
	}
	return recipient, nil
}

// Submit finalizes the draft, persists the receipt, publishes the
// transfer.submitted event, and discards the session.
func (s *Service) Submit(ctx context.Context, userID, sessionID uuid.UUID) (*domain.TransferRequest, error) {
	sess, err := s.lookupSession(userID, sessionID)
	if err != nil {
		return nil, err
	}

	req, err := sess.wizard.Submit(ctx, func(req *domain.TransferRequest) error {
		if err := s.repo.CreateReceipt(ctx, req); err != nil {
			return fmt.Errorf("receipt persist failed: %w", err)
		}
		if s.eventProducer != nil {
			if err := s.eventProducer.Publish(ctx, s.eventExchange, TransferSubmittedKey, req); err != nil {
				log.Printf("level=warn component=app msg=\"transfer.submitted publish failed\" reference=%s err=%v", req.TransactionReference, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	log.Printf("level=info component=app msg=\"transfer submitted\" reference=%s sender_id=%s corridor=%s amount_fils=%d total_fils=%d",
		req.TransactionReference, userID, req.Country.Code, req.SourceAmountFils, req.TotalFils)
	return req, nil
}

// ListReceipts returns the user's submitted transfers, newest first.
func (s *Service) ListReceipts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransferRequest, error) {
	return s.repo.ListReceiptsByUserID(ctx, userID, limit, offset)
}

// GetReceipt returns a single submitted transfer by its reference. Receipts
// belonging to other users are reported as not found.
func (s *Service) GetReceipt(ctx context.Context, userID, reference uuid.UUID) (*domain.TransferRequest, error) {
	receipt, err := s.repo.FindReceiptByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if receipt.SenderID != userID {
		return nil, store.ErrReceiptNotFound
	}
	return receipt, nil
}

// SetRecipientFavorite pins or unpins a saved recipient on the user's list.
func (s *Service) SetRecipientFavorite(ctx context.Context, userID, recipientID uuid.UUID, favorite bool) error {
	return s.repo.SetRecipientFavorite(ctx, recipientID, userID, favorite)
}
