package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/fanout/channel"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/retry"
)

// Dispatcher consumes notification envelopes from the bus and hands each to
// the sender registered for its channel type. It runs one goroutine per bus
// channel so a slow webhook target cannot stall email delivery.
type Dispatcher struct {
	bus      *RedisBus
	senders  *channel.Registry
	retryCfg retry.Config
}

// NewDispatcher creates a dispatcher over the given bus and sender registry.
func NewDispatcher(bus *RedisBus, senders *channel.Registry) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		senders:  senders,
		retryCfg: retry.DefaultConfig(),
	}
}

// Run subscribes to one bus channel per registered sender type and delivers
// notifications until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	types := d.senders.List()
	if len(types) == 0 {
		return fmt.Errorf("no channel senders registered")
	}

	var wg sync.WaitGroup
	for _, t := range types {
		sender, _ := d.senders.Get(t)
		pubsub := d.bus.Subscribe(ctx, busChannelPrefix+t)

		wg.Add(1)
		go func(channelType string, s channel.Sender) {
			defer wg.Done()
			defer pubsub.Close()

			slog.Info("Dispatcher listening", "channel", busChannelPrefix+channelType)

			ch := pubsub.Channel()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					d.deliver(ctx, s, []byte(msg.Payload))
				}
			}
		}(t, sender)
	}

	wg.Wait()
	return nil
}

// deliver decodes one envelope and sends it with bounded retry. Failures are
// logged and dropped: the alert itself is already persisted, only this
// notification copy is lost.
func (d *Dispatcher) deliver(ctx context.Context, sender channel.Sender, payload []byte) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		slog.Error("Failed to decode notification envelope", "error", err)
		return
	}

	err := retry.WithRetryAll(ctx, d.retryCfg, "deliver_"+n.Channel, func() error {
		return sender.Send(ctx, n.Target, &n.Alert)
	})
	if err != nil {
		slog.Error("Failed to deliver notification",
			"alert_id", n.Alert.ID,
			"subscriber_id", n.SubscriberID,
			"channel", n.Channel,
			"error", err,
		)
		return
	}

	slog.Debug("Notification delivered",
		"alert_id", n.Alert.ID,
		"subscriber_id", n.SubscriberID,
		"channel", n.Channel,
	)
}
