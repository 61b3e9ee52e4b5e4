/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL for the corridor reference table, saved
 * recipients, and submitted transfer receipts.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velopay/remittance-service/internal/domain"
)

var (
	ErrCorridorNotFound  = errors.New("corridor not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrReceiptNotFound   = errors.New("receipt not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListCorridors returns the destination corridor reference table, ordered by
// display name.
func (r *PostgresRepository) ListCorridors(ctx context.Context) ([]domain.CountryDescriptor, error) {
	query := `SELECT code, display_name, currency_code, flag_glyph, unit_rate
                FROM corridors ORDER BY display_name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list corridors query failed: %w", err)
	}
	defer rows.Close()

	var corridors []domain.CountryDescriptor
	for rows.Next() {
		var c domain.CountryDescriptor
		if err := rows.Scan(&c.Code, &c.DisplayName, &c.CurrencyCode, &c.FlagGlyph, &c.UnitRate); err != nil {
			return nil, err
		}
		corridors = append(corridors, c)
	}
	return corridors, rows.Err()
}

// FindCorridorByCode retrieves one corridor by its ISO country code.
func (r *PostgresRepository) FindCorridorByCode(ctx context.Context, code string) (*domain.CountryDescriptor, error) {
	var c domain.CountryDescriptor
	query := `SELECT code, display_name, currency_code, flag_glyph, unit_rate
                FROM corridors WHERE upper(code) = upper(btrim($1))`
	err := r.db.QueryRow(ctx, query, code).Scan(&c.Code, &c.DisplayName, &c.CurrencyCode, &c.FlagGlyph, &c.UnitRate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCorridorNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListRecipientsByUserID returns a user's saved recipients, favorites first,
// optionally filtered by a case-insensitive name search.
func (r *PostgresRepository) ListRecipientsByUserID(ctx context.Context, userID uuid.UUID, search string) ([]domain.Recipient, error) {
	query := `SELECT r.id, r.user_id, r.display_name, r.identifier_type, r.identifier,
                     r.bank_name, r.account_title, r.swift_code, r.branch, r.address,
                     c.code, c.display_name, c.currency_code, c.flag_glyph, c.unit_rate,
                     r.is_favorite, r.created_at
                FROM recipients r
                LEFT JOIN corridors c ON c.code = r.corridor_code
               WHERE r.user_id = $1`
	args := []interface{}{userID}
	if s := strings.TrimSpace(search); s != "" {
		query += ` AND r.display_name ILIKE '%' || $2 || '%'`
		args = append(args, s)
	}
	query += ` ORDER BY r.is_favorite DESC, r.created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipients query failed: %w", err)
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rec)
	}
	return recipients, rows.Err()
}

// FindRecipientByID retrieves one recipient, scoped to its owner.
func (r *PostgresRepository) FindRecipientByID(ctx context.Context, recipientID uuid.UUID, userID uuid.UUID) (*domain.Recipient, error) {
	query := `SELECT r.id, r.user_id, r.display_name, r.identifier_type, r.identifier,
                     r.bank_name, r.account_title, r.swift_code, r.branch, r.address,
                     c.code, c.display_name, c.currency_code, c.flag_glyph, c.unit_rate,
                     r.is_favorite, r.created_at
                FROM recipients r
                LEFT JOIN corridors c ON c.code = r.corridor_code
               WHERE r.id = $1 AND r.user_id = $2`
	row := r.db.QueryRow(ctx, query, recipientID, userID)
	rec, err := scanRecipient(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return rec, nil
}

// CreateRecipient inserts a newly classified recipient.
func (r *PostgresRepository) CreateRecipient(ctx context.Context, rec *domain.Recipient) error {
	var bankName, accountTitle, swiftCode, branch, address *string
	if rec.BankDetails != nil {
		bankName = nullable(rec.BankDetails.BankName)
		accountTitle = nullable(rec.BankDetails.AccountTitle)
		swiftCode = nullable(rec.BankDetails.SwiftCode)
		branch = nullable(rec.BankDetails.Branch)
		address = nullable(rec.BankDetails.Address)
	}
	var corridorCode *string
	if rec.Country != nil {
		corridorCode = &rec.Country.Code
	}

	query := `INSERT INTO recipients
                (id, user_id, display_name, identifier_type, identifier,
                 bank_name, account_title, swift_code, branch, address,
                 corridor_code, is_favorite, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.UserID, rec.DisplayName, rec.IdentifierType, rec.Identifier,
		bankName, accountTitle, swiftCode, branch, address,
		corridorCode, rec.IsFavorite, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recipient insert failed: %w", err)
	}
	return nil
}

// SetRecipientFavorite toggles the display-only favorite flag.
func (r *PostgresRepository) SetRecipientFavorite(ctx context.Context, recipientID uuid.UUID, userID uuid.UUID, favorite bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE recipients SET is_favorite = $1 WHERE id = $2 AND user_id = $3`,
		favorite, recipientID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecipientNotFound
	}
	return nil
}

// CreateReceipt records a submitted transfer request. The draft itself is
// never persisted; this row is the only durable artifact of the wizard.
func (r *PostgresRepository) CreateReceipt(ctx context.Context, req *domain.TransferRequest) error {
	query := `INSERT INTO transfer_receipts
                (reference, sender_id, source_amount_fils, fee_fils, total_fils,
                 converted_amount_minor, corridor_code, corridor_currency, unit_rate,
                 recipient_id, recipient_name, recipient_identifier_type, recipient_identifier,
                 status, submitted_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.Exec(ctx, query,
		req.TransactionReference, req.SenderID, req.SourceAmountFils, req.FeeFils, req.TotalFils,
		req.ConvertedAmountMinor, req.Country.Code, req.Country.CurrencyCode, req.Country.UnitRate,
		req.Recipient.ID, req.Recipient.DisplayName, req.Recipient.IdentifierType, req.Recipient.Identifier,
		req.Status, req.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("receipt insert failed: %w", err)
	}
	return nil
}

// ListReceiptsByUserID returns a user's submitted transfers, newest first.
func (r *PostgresRepository) ListReceiptsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransferRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT reference, sender_id, source_amount_fils, fee_fils, total_fils,
                     converted_amount_minor, corridor_code, corridor_currency, unit_rate,
                     recipient_id, recipient_name, recipient_identifier_type, recipient_identifier,
                     status, submitted_at
                FROM transfer_receipts
               WHERE sender_id = $1
               ORDER BY submitted_at DESC
               LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list receipts query failed: %w", err)
	}
	defer rows.Close()

	var receipts []domain.TransferRequest
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *rec)
	}
	return receipts, rows.Err()
}

// FindReceiptByReference retrieves one receipt by its transaction reference.
func (r *PostgresRepository) FindReceiptByReference(ctx context.Context, reference uuid.UUID) (*domain.TransferRequest, error) {
	query := `SELECT reference, sender_id, source_amount_fils, fee_fils, total_fils,
                     converted_amount_minor, corridor_code, corridor_currency, unit_rate,
                     recipient_id, recipient_name, recipient_identifier_type, recipient_identifier,
                     status, submitted_at
                FROM transfer_receipts WHERE reference = $1`
	rec, err := scanReceipt(r.db.QueryRow(ctx, query, reference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return rec, nil
}

// UpdateReceiptStatus applies a status reported back by the execution rail.
func (r *PostgresRepository) UpdateReceiptStatus(ctx context.Context, reference uuid.UUID, status string, failureReason *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transfer_receipts SET status = $1, failure_reason = $2 WHERE reference = $3`,
		status, failureReason, reference,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

func scanRecipient(row pgx.Row) (*domain.Recipient, error) {
	var rec domain.Recipient
	var bankName, accountTitle, swiftCode, branch, address *string
	var cCode, cName, cCurrency, cFlag *string
	var cRate *float64
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.DisplayName, &rec.IdentifierType, &rec.Identifier,
		&bankName, &accountTitle, &swiftCode, &branch, &address,
		&cCode, &cName, &cCurrency, &cFlag, &cRate,
		&rec.IsFavorite, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if bankName != nil || accountTitle != nil {
		rec.BankDetails = &domain.BankDetails{
			BankName:     deref(bankName),
			AccountTitle: deref(accountTitle),
			SwiftCode:    deref(swiftCode),
			Branch:       deref(branch),
			Address:      deref(address),
		}
	}
	if cCode != nil {
		rec.Country = &domain.CountryDescriptor{
			Code:         *cCode,
			DisplayName:  deref(cName),
			CurrencyCode: deref(cCurrency),
			FlagGlyph:    deref(cFlag),
		}
		if cRate != nil {
			rec.Country.UnitRate = *cRate
		}
	}
	return &rec, nil
}

func scanReceipt(row pgx.Row) (*domain.TransferRequest, error) {
	var req domain.TransferRequest
	err := row.Scan(
		&req.TransactionReference, &req.SenderID, &req.SourceAmountFils, &req.FeeFils, &req.TotalFils,
		&req.ConvertedAmountMinor, &req.Country.Code, &req.Country.CurrencyCode, &req.Country.UnitRate,
		&req.Recipient.ID, &req.Recipient.DisplayName, &req.Recipient.IdentifierType, &req.Recipient.Identifier,
		&req.Status, &req.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
