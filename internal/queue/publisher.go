package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/securevault/internal/metrics"
)

// Publisher hands DocumentEvents to the broker.
type Publisher interface {
    Publish(ctx context.Context, ev DocumentEvent) error
}

// NopPublisher drops every event.  Used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DocumentEvent) error { return nil }

type amqpChannel interface {
    QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
    PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
    Close() error
}

type amqpConnection interface {
    Channel() (amqpChannel, error)
    Close() error
}

type realConn struct{ *amqp.Connection }

func (c realConn) Channel() (amqpChannel, error) {
    ch, err := c.Connection.Channel()
    if err != nil {
        return nil, err
    }
    return ch, nil
}

const dialTimeout = 2 * time.Second

var dial = func(url string) (amqpConnection, error) {
    conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
    if err != nil {
        return nil, err
    }
    return realConn{conn}, nil
}

// AMQPPublisher opens a connection per publish.  Document events are rare
// compared to reads, so there is no pooled connection to keep healthy.
type AMQPPublisher struct {
    url     string
    metrics *metrics.Metrics
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string, m *metrics.Metrics) *AMQPPublisher {
    return &AMQPPublisher{url: url, metrics: m}
}

// Publish sends ev to DocumentEventsQueue as a persistent JSON message.
// Errors are logged and returned so the caller can choose to ignore them.
func (p *AMQPPublisher) Publish(ctx context.Context, ev DocumentEvent) (err error) {
    defer func() {
        p.metrics.RecordEvent(ev.Type, err)
        if err != nil {
            log.Warn().Err(err).Str("type", ev.Type).Str("document_id", ev.DocumentID).Msg("rabbitmq: publish failed")
        }
    }()

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }

    conn, err := dial(p.url)
    if err != nil {
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return err
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(DocumentEventsQueue, true, false, false, false, nil); err != nil {
        return err
    }

    return ch.PublishWithContext(ctx,
        "",                  // default exchange
        DocumentEventsQueue, // routing key = queue name
        false,
        false,
        amqp.Publishing{
            ContentType:  "application/json",
            DeliveryMode: amqp.Persistent,
            Timestamp:    time.Now().UTC(),
            Type:         ev.Type,
            Body:         body,
        },
    )
}
