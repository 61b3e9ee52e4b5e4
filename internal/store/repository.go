/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the remittance-service needs: the corridor reference table, saved
 * recipients, and the receipts written for submitted transfers. Defining an
 * interface decouples the wizard and service logic from PostgreSQL and keeps
 * them testable with in-memory fakes.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/velopay/remittance-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Corridor reference table
	ListCorridors(ctx context.Context) ([]domain.CountryDescriptor, error)
	FindCorridorByCode(ctx context.Context, code string) (*domain.CountryDescriptor, error)

	// Saved recipients
	ListRecipientsByUserID(ctx context.Context, userID uuid.UUID, search string) ([]domain.Recipient, error)
	FindRecipientByID(ctx context.Context, recipientID uuid.UUID, userID uuid.UUID) (*domain.Recipient, error)
	CreateRecipient(ctx context.Context, r *domain.Recipient) error
	SetRecipientFavorite(ctx context.Context, recipientID uuid.UUID, userID uuid.UUID, favorite bool) error

	// Submitted transfer receipts
	CreateReceipt(ctx context.Context, req *domain.TransferRequest) error
	ListReceiptsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransferRequest, error)
	FindReceiptByReference(ctx context.Context, reference uuid.UUID) (*domain.TransferRequest, error)
	UpdateReceiptStatus(ctx context.Context, reference uuid.UUID, status string, failureReason *string) error
}
