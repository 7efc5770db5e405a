// SPDX-License-Identifier: MIT
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"visualizer/internal/config"
	"visualizer/internal/log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var logger = log.New("bus")

// disconnectQuiesce is how long Close lets in-flight work finish, in ms.
const disconnectQuiesce = 250

// MQTTBus is a Bus on an MQTT broker. Subscriptions are restored after a
// reconnect.
type MQTTBus struct {
	client         mqtt.Client
	qos            byte
	publishTimeout time.Duration

	mu   sync.Mutex
	subs map[string]Handler
}

var _ Bus = (*MQTTBus)(nil)

// NewMQTT connects to cfg.Broker.
func NewMQTT(cfg config.BusConfig) (*MQTTBus, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = config.DefaultConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = config.DefaultPublishTimeout
	}
	b := &MQTTBus{
		qos:            cfg.QoS,
		publishTimeout: cfg.PublishTimeout,
		subs:           make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOrderMatters(false)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warnf("connection to %s lost: %v", cfg.Broker, err)
	})
	b.client = mqtt.NewClient(opts)

	tok := b.client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		b.client.Disconnect(0)
		return nil, &TransportError{Topic: cfg.Broker, Err: fmt.Errorf("connect timed out after %v", cfg.ConnectTimeout)}
	}
	if err := tok.Error(); err != nil {
		return nil, &TransportError{Topic: cfg.Broker, Err: fmt.Errorf("connect failed: %w", err)}
	}
	logger.Infof("connected to %s as %s", cfg.Broker, cfg.ClientID)
	return b, nil
}

// onConnect restores subscriptions after the initial connect or a reconnect.
func (b *MQTTBus) onConnect(c mqtt.Client) {
	b.mu.Lock()
	subs := make(map[string]Handler, len(b.subs))
	for topic, h := range b.subs {
		subs[topic] = h
	}
	b.mu.Unlock()

	for topic, h := range subs {
		if err := b.subscribe(c, topic, h); err != nil {
			logger.Errorf("resubscribe failed: %v", err)
		}
	}
}

func (b *MQTTBus) subscribe(c mqtt.Client, topic string, h Handler) error {
	tok := c.Subscribe(topic, b.qos, func(_ mqtt.Client, m mqtt.Message) {
		h(m.Topic(), m.Payload())
	})
	if !tok.WaitTimeout(b.publishTimeout) {
		return &TransportError{Topic: topic, Err: errors.New("subscribe timed out")}
	}
	if err := tok.Error(); err != nil {
		return &TransportError{Topic: topic, Err: err}
	}
	logger.Debugf("subscribed to %s", topic)
	return nil
}

func (b *MQTTBus) Subscribe(topic string, h Handler) error {
	b.mu.Lock()
	b.subs[topic] = h
	b.mu.Unlock()
	return b.subscribe(b.client, topic, h)
}

// Publish sends payload and waits for delivery up to the publish timeout or
// until ctx is done.
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.publishTimeout)
	defer cancel()

	tok := b.client.Publish(topic, b.qos, false, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return &TransportError{Topic: topic, Err: ctx.Err()}
	}
	if err := tok.Error(); err != nil {
		return &TransportError{Topic: topic, Err: err}
	}
	logger.Debugf("published %d bytes to %s", len(payload), topic)
	return nil
}

func (b *MQTTBus) Close() error {
	b.client.Disconnect(disconnectQuiesce)
	logger.Infof("disconnected")
	return nil
}
