package notify

import (
	"context"
	"time"

	"github.com/mstoica/storefront/internal/logging"
	"github.com/mstoica/storefront/internal/mykafka"
)

// Dispatcher delivers customer-facing notifications. Delivery is
// best-effort: implementations log failures and never return them, so
// a broken mailer can never roll back a checkout or a status change.
type Dispatcher interface {
	Send(ctx context.Context, recipient, subject, body string)
}

// KafkaDispatcher hands notifications to the mailer worker over a
// Kafka topic.
type KafkaDispatcher struct {
	Producer *mykafka.Producer
	Topic    string
}

type message struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

func (d *KafkaDispatcher) Send(ctx context.Context, recipient, subject, body string) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	msg := message{Recipient: recipient, Subject: subject, Body: body}
	if err := d.Producer.PublishEvent(pubCtx, d.Topic, recipient, msg); err != nil {
		logging.FromContext(ctx).Error("notification publish failed",
			"recipient", recipient, "subject", subject, "error", err)
	}
}

// Nop drops every notification. Used in tests and when no brokers are
// configured.
type Nop struct{}

func (Nop) Send(context.Context, string, string, string) {}
