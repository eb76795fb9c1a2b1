package syncevents

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/migration"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

type doneToken struct {
	mqtt.Token
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

type fakeMQTTClient struct {
	mqtt.Client
	mu           sync.Mutex
	connectErr   error
	subscribed   map[string]byte
	handlers     map[string]mqtt.MessageHandler
	disconnected bool
}

func (c *fakeMQTTClient) Connect() mqtt.Token { return doneToken{err: c.connectErr} }

func (c *fakeMQTTClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeMQTTClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed == nil {
		c.subscribed = map[string]byte{}
		c.handlers = map[string]mqtt.MessageHandler{}
	}
	c.subscribed[topic] = qos
	c.handlers[topic] = cb
	return doneToken{}
}

func (c *fakeMQTTClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	cb := c.handlers[topic]
	c.mu.Unlock()
	cb(c, fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type recordingHandler struct {
	mu       sync.Mutex
	payloads []string
	fail     func(attempt int) error
	calls    atomic.Int32
}

func (h *recordingHandler) HandleSyncPayload(_ context.Context, payload []byte) error {
	n := int(h.calls.Add(1))
	if h.fail != nil {
		if err := h.fail(n); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, string(payload))
	return nil
}

func (h *recordingHandler) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.payloads...)
}

type namedRunner struct {
	migration.Runner
	domain string
}

func (r namedRunner) DomainType() string { return r.domain }

func TestRoutesForSkipsDomainsWithoutTopic(t *testing.T) {
	runners := []migration.Runner{namedRunner{domain: "visits"}, namedRunner{domain: "accounts"}}

	routes := RoutesFor(runners, map[string]string{"visits": "legacy/visits"})

	require.Len(t, routes, 1)
	assert.Equal(t, "visits", routes[0].Domain)
	assert.Equal(t, "legacy/visits", routes[0].Topic)
}

func TestMQTTSubscriberRoutesMessages(t *testing.T) {
	visits := &recordingHandler{}
	accounts := &recordingHandler{fail: func(int) error { return errors.NewStd("source down") }}
	fake := &fakeMQTTClient{}

	sub := NewMQTTSubscriber(conf.MQTTSettings{Broker: "tcp://broker:1883", QoS: 1}, "syncbridge", []Route{
		{Domain: "visits", Topic: "legacy/visits", Handler: visits},
		{Domain: "accounts", Topic: "legacy/accounts", Handler: accounts},
	}, testLogger())
	sub.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		assert.Equal(t, "syncbridge", opts.ClientID)
		return fake
	}

	require.NoError(t, sub.Start(t.Context()))
	require.Error(t, sub.Start(t.Context()), "a second start is rejected")

	sub.subscribeAll(fake)
	assert.Equal(t, map[string]byte{"legacy/visits": 1, "legacy/accounts": 1}, fake.subscribed)

	fake.deliver("legacy/visits", []byte(`{"eventType":"INSERTED","key":"L1"}`))
	fake.deliver("legacy/accounts", []byte(`{"eventType":"INSERTED","key":"A1"}`))

	assert.Equal(t, []string{`{"eventType":"INSERTED","key":"L1"}`}, visits.received())
	assert.Equal(t, int32(1), accounts.calls.Load(), "a failing handler is not retried by the subscriber")

	sub.Stop()
	assert.True(t, fake.disconnected)
	sub.Stop()
}

func TestMQTTSubscriberConnectFailure(t *testing.T) {
	fake := &fakeMQTTClient{connectErr: errors.NewStd("connection refused")}
	sub := NewMQTTSubscriber(conf.MQTTSettings{Broker: "tcp://broker:1883", ClientID: "bridge-1"}, "syncbridge", nil, testLogger())
	sub.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		assert.Equal(t, "bridge-1", opts.ClientID)
		return fake
	}

	err := sub.Start(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

type fakeReader struct {
	mu        sync.Mutex
	messages  chan kafka.Message
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{messages: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.messages <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.messages:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestConsumer(routes []Route, readers map[string]*fakeReader) *KafkaConsumer {
	c := NewKafkaConsumer(conf.KafkaSettings{Brokers: []string{"localhost:9092"}, GroupID: "syncbridge"}, routes, testLogger())
	c.retryBase = 0
	c.attempts = 3
	c.newReader = func(topic string) messageReader { return readers[topic] }
	return c
}

func TestKafkaConsumerCommitsAfterHandler(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Topic: "visits", Offset: 1, Value: []byte(`one`)},
		kafka.Message{Topic: "visits", Offset: 2, Value: []byte(`two`)},
	)
	handler := &recordingHandler{fail: func(n int) error {
		if n == 2 {
			return errors.Newf("target busy").Category(errors.CategoryNetwork).Build()
		}
		return nil
	}}
	c := newTestConsumer([]Route{{Domain: "visits", Topic: "visits", Handler: handler}}, map[string]*fakeReader{"visits": reader})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"one", "two"}, handler.received(), "the transient failure was retried")
	assert.Equal(t, []int64{1, 2}, reader.commits())
	assert.True(t, reader.closed)
}

func TestKafkaConsumerSkipsPoisonMessages(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Topic: "visits", Offset: 7, Value: []byte(`not json`)},
		kafka.Message{Topic: "visits", Offset: 8, Value: []byte(`down`)},
	)
	var calls atomic.Int32
	handler := HandlerFunc(func(_ context.Context, payload []byte) error {
		calls.Add(1)
		if string(payload) == "not json" {
			return errors.Newf("bad payload").Category(errors.CategoryValidation).Build()
		}
		return errors.Newf("source down").Category(errors.CategoryNetwork).Build()
	})
	c := newTestConsumer([]Route{{Domain: "visits", Topic: "visits", Handler: handler}}, map[string]*fakeReader{"visits": reader})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(1+3), calls.Load(), "validation errors are not retried, others up to the attempt limit")
}

func TestKafkaConsumerDoesNotCommitOnShutdown(t *testing.T) {
	reader := newFakeReader(kafka.Message{Topic: "visits", Offset: 3, Value: []byte(`x`)})
	entered := make(chan struct{})
	handler := HandlerFunc(func(ctx context.Context, _ []byte) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	})
	c := newTestConsumer([]Route{{Domain: "visits", Topic: "visits", Handler: handler}}, map[string]*fakeReader{"visits": reader})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-entered
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, reader.commits())
}
