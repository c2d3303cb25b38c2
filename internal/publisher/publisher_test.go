package publisher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rpedde/nrf24-mqtt/internal/retry"
	"github.com/rpedde/nrf24-mqtt/internal/sensor"
	"github.com/rpedde/nrf24-mqtt/pkg/workqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type broker struct {
	mu           sync.Mutex
	messages     []message
	connects     int
	disconnects  int
	connectErr   func(workerID, attempt int) error
	publishErr   func(attempt int) error
	publishCalls int
}

func (b *broker) dial(workerID int) Client {
	return &fakeClient{broker: b, workerID: workerID}
}

func (b *broker) published() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.messages...)
}

type fakeClient struct {
	broker   *broker
	workerID int
	attempts int
}

func (c *fakeClient) Connect(ctx context.Context) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	c.attempts++
	if b.connectErr != nil {
		if err := b.connectErr(c.workerID, c.attempts); err != nil {
			return err
		}
	}
	b.connects++
	return nil
}

func (c *fakeClient) Publish(ctx context.Context, topic string, qos byte, retained bool, payload string) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishCalls++
	if b.publishErr != nil {
		if err := b.publishErr(b.publishCalls); err != nil {
			return err
		}
	}
	b.messages = append(b.messages, message{topic, qos, retained, payload})
	return nil
}

func (c *fakeClient) Disconnect() {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.disconnects++
}

type recorder struct {
	mu        sync.Mutex
	published int
	failed    int
	dropped   int
}

func (r *recorder) ObservePublish(d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
	} else {
		r.published++
	}
}

func (r *recorder) Dropped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

func testConfig(b *broker, rec *recorder) Config {
	return Config{
		Workers: 2,
		QoS:     1,
		Retain:  true,
		Topics: sensor.Topics{
			Prefix: "home",
			Names:  map[sensor.Address]string{{0xAE, 0xAE, 0xAE, 0xAE, 0x00}: "porch"},
		},
		Dial:     b.dial,
		Retry:    retry.NewExecutor(retry.NewBackoff(3, time.Millisecond)),
		Recorder: rec,
	}
}

func TestPublisher_PublishesReadings(t *testing.T) {
	b := &broker{}
	rec := &recorder{}

	p, err := New(testConfig(b, rec))
	require.NoError(t, err)

	porch := sensor.Address{0xAE, 0xAE, 0xAE, 0xAE, 0x00}
	require.NoError(t, p.Submit(sensor.NewUint8Reading(porch, sensor.TypeROSwitch, sensor.ModelNone, 0, 1)))
	require.NoError(t, p.Submit(sensor.NewFloatReading(sensor.Address{1, 2, 3, 4, 5}, sensor.TypeTemperature, sensor.ModelDS18B20, 1, 22.5)))

	require.NoError(t, p.Close(false))

	messages := b.published()
	require.Len(t, messages, 2)

	topics := map[string]string{}
	for _, m := range messages {
		assert.Equal(t, byte(1), m.qos)
		assert.True(t, m.retained)
		topics[m.topic] = m.payload
	}
	assert.Equal(t, "1", topics["home/porch/ro_switch/0"])
	assert.Equal(t, "22.5", topics["home/0102030405/temperature/1"])

	assert.Equal(t, 2, b.connects)
	assert.Equal(t, 2, b.disconnects)
	assert.Equal(t, 2, rec.published)

	s := p.Stats()
	assert.Equal(t, uint64(2), s.Dispatched)
	assert.Equal(t, 0, s.Total)
}

func TestPublisher_ConnectRetries(t *testing.T) {
	b := &broker{connectErr: func(workerID, attempt int) error {
		if attempt < 3 {
			return errors.New("connection refused")
		}
		return nil
	}}

	p, err := New(testConfig(b, &recorder{}))
	require.NoError(t, err)
	require.NoError(t, p.Close(false))

	assert.Equal(t, 2, b.connects)
}

func TestPublisher_ConnectFailure(t *testing.T) {
	b := &broker{connectErr: func(workerID, attempt int) error {
		if workerID == 1 {
			return errors.New("not authorized")
		}
		return nil
	}}

	p, err := New(testConfig(b, &recorder{}))
	require.Error(t, err)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, workqueue.ErrInitFailed)
	assert.Contains(t, err.Error(), "not authorized")

	// worker 0 connected and was torn down again
	assert.Equal(t, 1, b.connects)
	assert.Equal(t, 1, b.disconnects)
}

func TestPublisher_PublishRetries(t *testing.T) {
	b := &broker{publishErr: func(call int) error {
		if call == 1 {
			return errors.New("timeout")
		}
		return nil
	}}
	rec := &recorder{}

	config := testConfig(b, rec)
	config.Workers = 1
	p, err := New(config)
	require.NoError(t, err)

	require.NoError(t, p.Submit(sensor.NewUint8Reading(sensor.Address{}, sensor.TypeMotion, sensor.ModelNone, 0, 1)))
	require.NoError(t, p.Close(false))

	assert.Len(t, b.published(), 1)
	assert.Equal(t, 1, rec.published)
	assert.Equal(t, 0, rec.failed)
}

func TestPublisher_PublishFailure(t *testing.T) {
	b := &broker{publishErr: func(call int) error {
		return errors.New("broker gone")
	}}
	rec := &recorder{}

	config := testConfig(b, rec)
	config.Workers = 1
	p, err := New(config)
	require.NoError(t, err)

	require.NoError(t, p.Submit(sensor.NewUint8Reading(sensor.Address{}, sensor.TypeLight, sensor.ModelNone, 0, 200)))
	require.NoError(t, p.Close(false))

	assert.Empty(t, b.published())
	assert.Equal(t, 3, b.publishCalls)
	assert.Equal(t, 1, rec.failed)
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestPublisher_SubmitAfterClose(t *testing.T) {
	rec := &recorder{}
	p, err := New(testConfig(&broker{}, rec))
	require.NoError(t, err)
	require.NoError(t, p.Close(true))

	err = p.Submit(sensor.NewUint8Reading(sensor.Address{}, sensor.TypeMotion, sensor.ModelNone, 0, 1))
	assert.ErrorIs(t, err, workqueue.ErrRejected)
	assert.Equal(t, 1, rec.dropped)

	assert.ErrorIs(t, p.Close(true), workqueue.ErrClosed)
}

func TestPublisher_RequiresDialer(t *testing.T) {
	_, err := New(Config{Workers: 1})
	assert.ErrorIs(t, err, workqueue.ErrInvalidConfig)
}

func TestClientID(t *testing.T) {
	a := ClientID("nrf24", 0)
	b := ClientID("nrf24", 0)

	assert.True(t, strings.HasPrefix(a, "nrf24-0-"))
	assert.Len(t, a, len("nrf24-0-")+8)
	assert.NotEqual(t, a, b)
}
