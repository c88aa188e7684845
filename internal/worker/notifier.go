package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/tiendafacil/pedidos-api/internal/model"
)

const (
	orderEventQueue  = "order.events"
	dlxExchange      = "order.events.dlx"
	dlqQueueName     = "order.events.dlq"
	idempotencyTTL   = 24 * time.Hour
	maxNotifications = 50
)

// NotificationsKey is the Redis list holding a user's latest order
// notifications, newest first.
func NotificationsKey(userID string) string {
	return "notifications:" + userID
}

// Notifier consumes order lifecycle events and maintains each customer's
// notification feed in Redis.
type Notifier struct {
	channel     *amqp.Channel
	redisClient *redis.Client
	log         *slog.Logger
	done        chan struct{}
}

func NewNotifier(ch *amqp.Channel, redisClient *redis.Client, log *slog.Logger) *Notifier {
	return &Notifier{
		channel:     ch,
		redisClient: redisClient,
		log:         log,
		done:        make(chan struct{}),
	}
}

// SetupRabbitMQ declares the event queue and its DLX/DLQ bindings.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, orderEventQueue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(orderEventQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": orderEventQueue,
	}); err != nil {
		return fmt.Errorf("declare event queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *Notifier) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(orderEventQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("order notifier started")
	return nil
}

func (w *Notifier) Stop() { close(w.done) }

func (w *Notifier) processMessage(ctx context.Context, msg amqp.Delivery) {
	var event model.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		w.log.Error("unmarshal order event", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("order_id", event.OrderID, "customer_id", event.CustomerID, "status", event.Status)

	// One notification per order+status, even if the event is redelivered.
	idempotencyKey := fmt.Sprintf("order_notified:%s:%s", event.OrderID, event.Status)
	exists, err := w.redisClient.Exists(ctx, idempotencyKey).Result()
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.Info("event already notified, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.notify(ctx, event); err != nil {
		log.Error("notify failed", "error", err)
		_ = msg.Nack(false, false) // to DLQ
		return
	}

	if err := w.redisClient.Set(ctx, idempotencyKey, "1", idempotencyTTL).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("notification recorded")
}

func (w *Notifier) notify(ctx context.Context, event model.OrderEvent) error {
	var text string
	switch event.Status {
	case model.OrderStatusPending:
		text = fmt.Sprintf("Pedido %s creado", event.OrderID)
	default:
		text = fmt.Sprintf("Pedido %s ahora está %s", event.OrderID, event.Status)
	}

	key := NotificationsKey(event.CustomerID.String())
	pipe := w.redisClient.TxPipeline()
	pipe.LPush(ctx, key, text)
	pipe.LTrim(ctx, key, 0, maxNotifications-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}
