package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/imaad666/W-Chhatt/pkg/log"
)

// channelToSubject maps a colon separated channel onto a NATS subject. The
// glob "*" is also the NATS single-token wildcard, so patterns map the same
// way.
//
//	"chat:room:R1:events" -> "chat.room.R1.events"
func channelToSubject(channel string) (string, error) {
	if _, _, _, err := splitChannel(channel); err != nil {
		return "", err
	}
	return strings.ReplaceAll(channel, ":", "."), nil
}

// NATSPubSub implements PubSub on core NATS subjects.
type NATSPubSub struct {
	conn          *nats.Conn
	subscriptions map[string]*nats.Subscription
	mu            sync.Mutex
}

// NewNATSPubSub connects to the NATS server in cfg.
func NewNATSPubSub(cfg NATSConfig) (*NATSPubSub, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l := log.L()
			l.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l := log.L()
			l.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPubSub{
		conn:          nc,
		subscriptions: make(map[string]*nats.Subscription),
	}, nil
}

// Publish publishes the event on the channel's subject.
func (n *NATSPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	subject, err := channelToSubject(channel)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return n.conn.Publish(subject, data)
}

// Subscribe subscribes to a single channel.
func (n *NATSPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return n.subscribe(ctx, channel)
}

// SubscribePattern subscribes to every channel matching the pattern.
func (n *NATSPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return n.subscribe(ctx, pattern)
}

func (n *NATSPubSub) subscribe(ctx context.Context, key string) (<-chan *Event, error) {
	subject, err := channelToSubject(key)
	if err != nil {
		return nil, err
	}

	msgCh := make(chan *nats.Msg, subscriptionBuffer)
	sub, err := n.conn.ChanSubscribe(subject, msgCh)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	n.mu.Lock()
	if old, ok := n.subscriptions[key]; ok {
		old.Unsubscribe()
	}
	n.subscriptions[key] = sub
	n.mu.Unlock()

	eventCh := make(chan *Event, subscriptionBuffer)
	go n.forward(ctx, sub, msgCh, eventCh)
	return eventCh, nil
}

func (n *NATSPubSub) forward(ctx context.Context, sub *nats.Subscription, msgCh <-chan *nats.Msg, eventCh chan<- *Event) {
	defer close(eventCh)
	l := log.Ctx(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		case <-ticker.C:
			if !sub.IsValid() {
				return
			}
		case msg := <-msgCh:
			var event Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				l.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable nats event")
				continue
			}

			select {
			case eventCh <- &event:
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			default:
				l.Warn().Str("subject", msg.Subject).Msg("nats subscriber is full, dropping event")
			}
		}
	}
}

// Unsubscribe drops the subscription registered under channel (or pattern).
func (n *NATSPubSub) Unsubscribe(ctx context.Context, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, ok := n.subscriptions[channel]
	if !ok {
		return nil
	}
	delete(n.subscriptions, channel)
	return sub.Unsubscribe()
}

// Close drains the connection.
func (n *NATSPubSub) Close() error {
	n.mu.Lock()
	n.subscriptions = make(map[string]*nats.Subscription)
	n.mu.Unlock()

	return n.conn.Drain()
}
