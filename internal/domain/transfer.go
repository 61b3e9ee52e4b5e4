/**
 * @description
 * This file defines the core domain models for the remittance-service.
 * These structs represent the transfer draft the send-money wizard builds,
 * the recipients it attaches, and the final transfer request it hands off
 * to the external execution rail.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (fils for
 *   AED), which avoids floating-point inaccuracies with financial data.
 *   Converted amounts are likewise minor units of the destination currency.
 * - Exchange rates are plain multipliers (one unit of home currency to
 *   destination currency); rounding is half-up to the minor unit.
 */

package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// Stage identifies the wizard's current position in the send-money flow.
type Stage string

const (
	StageAmount       Stage = "amount"
	StageBeneficiary  Stage = "beneficiary"
	StageConfirmation Stage = "confirmation"
)

// IdentifierKind is the classification of a free-text beneficiary identifier.
type IdentifierKind string

const (
	IdentifierIBAN         IdentifierKind = "iban"
	IdentifierMobileNumber IdentifierKind = "mobile_number"
	IdentifierBankAccount  IdentifierKind = "bank_account"
	IdentifierUnclassified IdentifierKind = "unclassified"
)

// Guard and lifecycle errors surfaced by the wizard and recipient creation.
var (
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrNoCountry               = errors.New("destination country not selected")
	ErrNoRecipient             = errors.New("recipient not selected")
	ErrInvalidStage            = errors.New("operation not valid in current stage")
	ErrUnclassifiedIdentifier  = errors.New("identifier does not match any supported shape")
	ErrMissingAccountTitle     = errors.New("account title is required for bank account recipients")
	ErrSubmitInFlight          = errors.New("submission already in flight")
	ErrAlreadySubmitted        = errors.New("transfer already submitted")
	ErrRecipientCountryChanged = errors.New("recipient belongs to a different destination country")
)

// CountryDescriptor is one row of the destination corridor reference table.
type CountryDescriptor struct {
	Code         string  `json:"code"`
	DisplayName  string  `json:"display_name"`
	CurrencyCode string  `json:"currency_code"`
	FlagGlyph    string  `json:"flag_glyph"`
	UnitRate     float64 `json:"unit_rate"` // home-currency-to-destination multiplier
}

// BankDetails holds the resolved or manually entered banking information
// attached to IBAN and bank-account recipients.
type BankDetails struct {
	BankName     string `json:"bank_name"`
	AccountTitle string `json:"account_title"`
	SwiftCode    string `json:"swift_code,omitempty"`
	Branch       string `json:"branch,omitempty"`
	Address      string `json:"address,omitempty"`
}

// Recipient is a beneficiary of a transfer, identified by one of three
// identifier kinds. Once attached to a draft that reaches confirmation the
// recipient is immutable for that draft.
type Recipient struct {
	ID             uuid.UUID          `json:"id"`
	UserID         uuid.UUID          `json:"user_id"`
	DisplayName    string             `json:"display_name"`
	IdentifierType IdentifierKind     `json:"identifier_type"`
	Identifier     string             `json:"identifier"`
	BankDetails    *BankDetails       `json:"bank_details,omitempty"`
	Country        *CountryDescriptor `json:"country,omitempty"`
	IsFavorite     bool               `json:"is_favorite"`
	CreatedAt      time.Time          `json:"created_at"`
}

// TransferDraft is the mutable, in-progress transfer the wizard owns for the
// lifetime of one transfer attempt. It is never persisted; only the
// TransferRequest produced at submission is.
type TransferDraft struct {
	SourceAmountFils int64              `json:"source_amount_fils"`
	Country          *CountryDescriptor `json:"country,omitempty"`
	Recipient        *Recipient         `json:"recipient,omitempty"`
	FeeFils          int64              `json:"fee_fils"`
	Stage            Stage              `json:"stage"`
	Submitted        bool               `json:"submitted"`
}

// ConvertedAmountMinor computes the display amount in the destination
// currency's minor units, rounded half-up. Returns zero until both amount
// and country are set.
func (d TransferDraft) ConvertedAmountMinor() int64 {
	if d.Country == nil || d.SourceAmountFils <= 0 {
		return 0
	}
	return RoundHalfUp(float64(d.SourceAmountFils) * d.Country.UnitRate)
}

// TotalFils is the amount the sender pays: source amount plus fee.
func (d TransferDraft) TotalFils() int64 {
	return d.SourceAmountFils + d.FeeFils
}

// RoundHalfUp rounds to the nearest integer with ties going up, the rounding
// mode used for all converted-amount display math.
func RoundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}

// TransferRequest is the wizard's output: a fully resolved, ready-to-execute
// transfer handed to the external execution rail. The wizard's job ends here.
type TransferRequest struct {
	TransactionReference uuid.UUID         `json:"transaction_reference"`
	SenderID             uuid.UUID         `json:"sender_id"`
	SourceAmountFils     int64             `json:"source_amount_fils"`
	FeeFils              int64             `json:"fee_fils"`
	TotalFils            int64             `json:"total_fils"`
	ConvertedAmountMinor int64             `json:"converted_amount_minor"`
	Country              CountryDescriptor `json:"country"`
	Recipient            Recipient         `json:"recipient"`
	Status               string            `json:"status"` // 'submitted', 'processing', 'completed', 'failed'
	SubmittedAt          time.Time         `json:"submitted_at"`
}

// Receipt statuses reported back by the execution rail.
const (
	ReceiptStatusSubmitted  = "submitted"
	ReceiptStatusProcessing = "processing"
	ReceiptStatusCompleted  = "completed"
	ReceiptStatusFailed     = "failed"
)

// CreateRecipientRequest is the DTO for creating a new recipient from a
// free-text identifier. DeclaredKind, when set, resolves the mobile/bank
// account shape overlap in favor of the caller's explicit choice.
type CreateRecipientRequest struct {
	DisplayName  string         `json:"display_name"`
	Identifier   string         `json:"identifier"`
	DeclaredKind IdentifierKind `json:"declared_kind,omitempty"`
	BankName     string         `json:"bank_name,omitempty"`
	AccountTitle string         `json:"account_title,omitempty"`
	SwiftCode    string         `json:"swift_code,omitempty"`
	Branch       string         `json:"branch,omitempty"`
	Address      string         `json:"address,omitempty"`
}
