package queue

import (
    "context"
    "encoding/json"
    "errors"
    "testing"

    "github.com/prometheus/client_golang/prometheus/testutil"
    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/securevault/internal/metrics"
)

type fakeChannel struct {
    declared   string
    key        string
    msg        amqp.Publishing
    closed     bool
    publishErr error
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
    f.declared = name
    return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
    f.key, f.msg = key, msg
    return f.publishErr
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

type fakeConn struct {
    ch     *fakeChannel
    closed bool
}

func (f *fakeConn) Channel() (amqpChannel, error) { return f.ch, nil }
func (f *fakeConn) Close() error                  { f.closed = true; return nil }

func withDial(t *testing.T, fn func(string) (amqpConnection, error)) {
    t.Helper()
    orig := dial
    dial = fn
    t.Cleanup(func() { dial = orig })
}

func TestAMQPPublisher_Publish(t *testing.T) {
    conn := &fakeConn{ch: &fakeChannel{}}
    var gotURL string
    withDial(t, func(url string) (amqpConnection, error) { gotURL = url; return conn, nil })

    m := metrics.New()
    p := NewAMQPPublisher("amqp://broker", m)
    ev := NewDocumentEvent(EventDocumentUploaded, "d1", "u1", "u1/k.pdf", 42)

    require.NoError(t, p.Publish(context.Background(), ev))
    assert.Equal(t, "amqp://broker", gotURL)
    assert.Equal(t, DocumentEventsQueue, conn.ch.declared)
    assert.Equal(t, DocumentEventsQueue, conn.ch.key)
    assert.Equal(t, amqp.Persistent, conn.ch.msg.DeliveryMode)
    assert.True(t, conn.ch.closed)
    assert.True(t, conn.closed)

    var decoded DocumentEvent
    require.NoError(t, json.Unmarshal(conn.ch.msg.Body, &decoded))
    assert.Equal(t, ev, decoded)
    assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(EventDocumentUploaded, "ok")))
}

func TestAMQPPublisher_Failures(t *testing.T) {
    m := metrics.New()
    p := NewAMQPPublisher("amqp://broker", m)

    withDial(t, func(string) (amqpConnection, error) { return nil, errors.New("refused") })
    assert.Error(t, p.Publish(context.Background(), NewDocumentEvent(EventDocumentDeleted, "d1", "u1", "k", 1)))

    withDial(t, func(string) (amqpConnection, error) {
        return &fakeConn{ch: &fakeChannel{publishErr: errors.New("closed")}}, nil
    })
    assert.Error(t, p.Publish(context.Background(), NewDocumentEvent(EventDocumentDeleted, "d1", "u1", "k", 1)))
    assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(EventDocumentDeleted, "error")))
}

func TestNopPublisher(t *testing.T) {
    var p Publisher = NopPublisher{}
    assert.NoError(t, p.Publish(context.Background(), DocumentEvent{}))
}
