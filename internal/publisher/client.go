package publisher

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rpedde/nrf24-mqtt/internal/config"
)

// Client is one broker connection, owned by a single worker
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload string) error
	Disconnect()
}

// Dialer creates an unconnected client for a worker
type Dialer func(workerID int) Client

// ClientID returns a broker client ID unique to this process and worker
func ClientID(prefix string, workerID int) string {
	return fmt.Sprintf("%s-%d-%s", prefix, workerID, uuid.NewString()[:8])
}

// PahoDialer returns a Dialer creating paho clients for cfg
func PahoDialer(cfg config.MQTT) Dialer {
	return func(workerID int) Client {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.BrokerURL()).
			SetClientID(ClientID(cfg.ClientIDPrefix, workerID)).
			SetKeepAlive(cfg.Keepalive).
			SetConnectTimeout(cfg.ConnectTimeout).
			SetCleanSession(true).
			SetAutoReconnect(true)
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
			opts.SetPassword(cfg.Password)
		}
		return &pahoClient{client: mqtt.NewClient(opts)}
	}
}

type pahoClient struct {
	client mqtt.Client
}

func (c *pahoClient) Connect(ctx context.Context) error {
	return wait(ctx, c.client.Connect())
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos byte, retained bool, payload string) error {
	return wait(ctx, c.client.Publish(topic, qos, retained, payload))
}

func (c *pahoClient) Disconnect() {
	c.client.Disconnect(250)
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
