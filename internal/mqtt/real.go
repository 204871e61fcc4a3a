package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// bufferCapacity bounds the commands held while the broker is unreachable.
const bufferCapacity = 64

// RealCommander publishes commands to an actual MQTT broker and optionally
// subscribes to the state topics.
type RealCommander struct {
	client paho.Client
	prefix string
	log    zerolog.Logger

	mu      sync.Mutex
	queue   *commandQueue
	handler func(payload []byte)
}

// NewRealCommander creates a commander connected to the given broker.
func NewRealCommander(broker, prefix string, log zerolog.Logger) (*RealCommander, error) {
	c := &RealCommander{
		prefix: prefixOrDefault(prefix),
		log:    log,
		queue:  newCommandQueue(bufferCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("pw-dashboard-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return c, nil
}

// onConnect replays buffered commands and restores the state subscription.
func (c *RealCommander) onConnect(client paho.Client) {
	c.mu.Lock()
	pending := c.queue.drain()
	handler := c.handler
	c.mu.Unlock()

	c.log.Info().Int("buffered", len(pending)).Msg("mqtt connected")
	for _, m := range pending {
		token := client.Publish(m.topic, 1, false, m.payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			c.log.Error().Err(token.Error()).Str("topic", m.topic).Msg("failed to replay buffered command")
		}
	}
	if handler != nil {
		if err := c.subscribe(client); err != nil {
			c.log.Error().Err(err).Msg("failed to restore state subscription")
		}
	}
}

// SendCommand publishes the command payload on its topic. While the broker
// is unreachable the command is buffered and replayed on reconnect.
func (c *RealCommander) SendCommand(ctx context.Context, cmd Command) error {
	payload, err := FormatPayload(cmd)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		replaced, dropped := c.queue.push(pendingCommand{topic: cmd.Topic, payload: payload})
		c.mu.Unlock()
		if dropped {
			c.log.Warn().Int("capacity", bufferCapacity).Msg("mqtt buffer full, dropping oldest command")
		}
		c.log.Warn().Str("topic", cmd.Topic).Bool("replaced", replaced).Msg("mqtt offline, command buffered")
		return nil
	}

	// QoS 1 (at-least-once): a lost relay command is user visible
	token := c.client.Publish(cmd.Topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	c.log.Debug().Str("topic", cmd.Topic).Str("val", cmd.Payload.Val).Msg("command published")
	return nil
}

// Subscribe delivers every payload received on the state topics to handler.
// The last subscriber wins.
func (c *RealCommander) Subscribe(handler func(payload []byte)) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
	return c.subscribe(c.client)
}

func (c *RealCommander) subscribe(client paho.Client) error {
	topic := StateTopic(c.prefix)
	token := client.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(m.Payload())
		}
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.log.Info().Str("topic", topic).Msg("subscribed to state topics")
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *RealCommander) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealCommander) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
