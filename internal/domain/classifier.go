/**
 * @description
 * This file implements the beneficiary identifier classifier: a pure function
 * mapping a free-text identifier string to a typed identifier kind. The shape
 * checks are deliberately simple pattern matches (no IBAN checksum); the
 * resolution of full bank details for IBANs is a separate, fallible lookup
 * owned by the wizard's BankResolver dependency.
 *
 * @notes
 * - Shapes are checked in priority order: IBAN, then mobile number, then
 *   bank account; first match wins. Plain digit strings of length 10-15
 *   therefore classify as mobile numbers. Callers that know better (an
 *   explicit "bank account" selector in the client) pass a declared kind
 *   to ClassifyDeclared, which wins whenever the input fits that shape.
 */

package domain

import (
	"regexp"
	"strings"
)

var (
	// Two uppercase letters, two digits, four alphanumerics, seven digits,
	// then up to sixteen further alphanumerics. A shape check, not a
	// checksum validation.
	ibanPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Za-z0-9]{4}[0-9]{7}[A-Za-z0-9]{0,16}$`)

	// Optional leading +, ten to fifteen digits.
	mobilePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

	// Eight to twenty digits only.
	bankAccountPattern = regexp.MustCompile(`^[0-9]{8,20}$`)
)

// ClassifyIdentifier classifies a free-text beneficiary identifier. It is
// pure and deterministic: the same input always yields the same kind.
func ClassifyIdentifier(identifier string) IdentifierKind {
	s := strings.TrimSpace(identifier)
	if s == "" {
		return IdentifierUnclassified
	}
	switch {
	case ibanPattern.MatchString(s):
		return IdentifierIBAN
	case mobilePattern.MatchString(s):
		return IdentifierMobileNumber
	case bankAccountPattern.MatchString(s):
		return IdentifierBankAccount
	default:
		return IdentifierUnclassified
	}
}

// ClassifyDeclared classifies an identifier honoring an explicit kind chosen
// by the caller. A declared bank account wins over mobile-number sniffing
// when the input fits the bank-account shape; a declared kind whose shape
// the input does not fit falls back to ordinary classification.
func ClassifyDeclared(identifier string, declared IdentifierKind) IdentifierKind {
	s := strings.TrimSpace(identifier)
	switch declared {
	case IdentifierBankAccount:
		if bankAccountPattern.MatchString(s) {
			return IdentifierBankAccount
		}
	case IdentifierMobileNumber:
		if mobilePattern.MatchString(s) {
			return IdentifierMobileNumber
		}
	case IdentifierIBAN:
		if ibanPattern.MatchString(s) {
			return IdentifierIBAN
		}
	}
	return ClassifyIdentifier(s)
}
