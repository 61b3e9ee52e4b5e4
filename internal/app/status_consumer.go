/**
 * @description
 * This file consumes transfer status events reported back by the external
 * execution rail and applies them to the persisted receipts. The wizard's
 * responsibility ends at producing a TransferRequest; this consumer is how
 * the rail's outcome (processing, completed, failed) reaches the user's
 * transfer history.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/google/uuid: For the transaction reference.
 * - internal/domain, internal/store: Domain models and receipt persistence.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/velopay/remittance-service/internal/domain"
	"github.com/velopay/remittance-service/internal/store"
)

// TransferStatusEvent is the payload the execution rail publishes for each
// status change of a submitted transfer.
type TransferStatusEvent struct {
	TransactionReference uuid.UUID `json:"transaction_reference"`
	Status               string    `json:"status"`
	Reason               string    `json:"reason,omitempty"`
}

// ReceiptStatusConsumer applies rail status events to stored receipts.
type ReceiptStatusConsumer struct {
	repo store.Repository
}

// NewReceiptStatusConsumer creates a consumer bound to the receipt store.
func NewReceiptStatusConsumer(repo store.Repository) *ReceiptStatusConsumer {
	return &ReceiptStatusConsumer{repo: repo}
}

// HandleMessage processes one raw event body. Returning true acks the
// delivery; malformed or unknown-reference events are acked to avoid
// poison-message loops, transient store errors are nacked for redelivery.
func (c *ReceiptStatusConsumer) HandleMessage(body []byte) bool {
	var event TransferStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=status_consumer msg=\"unmarshal failed; dropping\" err=%v", err)
		return true
	}
	if event.TransactionReference == uuid.Nil {
		log.Printf("level=warn component=status_consumer msg=\"missing transaction reference; dropping\"")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("level=error component=status_consumer msg=\"processing failed\" reference=%s err=%v", event.TransactionReference, err)
		return false
	}
	return true
}

func (c *ReceiptStatusConsumer) processEvent(ctx context.Context, event TransferStatusEvent) error {
	status := normalizeReceiptStatus(event.Status)
	if status == "" {
		log.Printf("level=warn component=status_consumer msg=\"unknown status; dropping\" reference=%s status=%q", event.TransactionReference, event.Status)
		return nil
	}

	var failureReason *string
	if status == domain.ReceiptStatusFailed && strings.TrimSpace(event.Reason) != "" {
		reason := strings.TrimSpace(event.Reason)
		failureReason = &reason
	}

	err := c.repo.UpdateReceiptStatus(ctx, event.TransactionReference, status, failureReason)
	if errors.Is(err, store.ErrReceiptNotFound) {
		log.Printf("level=warn component=status_consumer msg=\"no receipt for reference; dropping\" reference=%s", event.TransactionReference)
		return nil
	}
	return err
}

func normalizeReceiptStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "processing", "in_progress", "pending":
		return domain.ReceiptStatusProcessing
	case "completed", "successful", "success":
		return domain.ReceiptStatusCompleted
	case "failed", "rejected", "returned":
		return domain.ReceiptStatusFailed
	default:
		return ""
	}
}
