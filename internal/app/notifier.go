/**
 * @description
 * This file implements the post-commit notifier. After a pairing transaction
 * has committed, both account holders are informed of the debit and credit via
 * events published to RabbitMQ; a downstream notification service turns them
 * into emails. Delivery is strictly best-effort: publish failures are logged
 * and discarded, never retried inline, and never affect the committed transfer.
 *
 * @dependencies
 * - context, fmt, log: Standard Go libraries.
 * - internal/domain, pkg/rabbitmq: Domain models and the event producer.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/offpay/pairing-service/internal/domain"
	"github.com/offpay/pairing-service/pkg/rabbitmq"
)

// Notifier publishes debit/credit notifications for settled transfers.
type Notifier struct {
	producer rabbitmq.Publisher
	exchange string
}

// NewNotifier creates a Notifier publishing to the given topic exchange.
func NewNotifier(producer rabbitmq.Publisher, exchange string) *Notifier {
	return &Notifier{producer: producer, exchange: exchange}
}

// NotifyTransferSettled informs both parties of a committed transfer.
// Runs after durability is established; failures are logged only.
func (n *Notifier) NotifyTransferSettled(ctx context.Context, outcome *domain.SubmitOutcome) {
	if n == nil || n.producer == nil || outcome.Transfer == nil {
		return
	}
	transfer := outcome.Transfer
	amount := transfer.Amount.StringFixed(2)

	if outcome.Sender != nil {
		n.publish(ctx, "payment.notification.debit", rabbitmq.PaymentNotification{
			Target:     outcome.Sender.Email,
			AccountID:  outcome.Sender.AccountID,
			TransferID: transfer.ID,
			Direction:  "debit",
			Amount:     amount,
			Subject:    "Debit: Amount deducted",
			Body:       fmt.Sprintf("Your account was debited by %s. Transfer id: %s", amount, transfer.ID),
		})
	}
	if outcome.Receiver != nil {
		n.publish(ctx, "payment.notification.credit", rabbitmq.PaymentNotification{
			Target:     outcome.Receiver.Email,
			AccountID:  outcome.Receiver.AccountID,
			TransferID: transfer.ID,
			Direction:  "credit",
			Amount:     amount,
			Subject:    "Credit: Amount credited",
			Body:       fmt.Sprintf("Your account was credited by %s. Transfer id: %s", amount, transfer.ID),
		})
	}
}

func (n *Notifier) publish(ctx context.Context, routingKey string, event rabbitmq.PaymentNotification) {
	if err := n.producer.Publish(ctx, n.exchange, routingKey, event); err != nil {
		log.Printf("level=warn component=notifier msg=\"notification publish failed; dropping\" routing_key=%s transfer_id=%s err=%v",
			routingKey, event.TransferID, err)
	}
}
