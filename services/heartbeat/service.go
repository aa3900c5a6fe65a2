// Package heartbeat emits a periodic liveness tick so a watching host can
// tell a quiet device from a dead one.
package heartbeat

import (
	"context"
	"time"

	"capsense-go/bus"
)

var (
	topicConfig = bus.Topic{"config", "heartbeat"}
	topicBeat   = bus.Topic{"heartbeat", "beat"}
)

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case t := <-tick.C:
			println("Info:", t.Format("15:04:05"), "Heartbeat")
			conn.Publish(conn.NewMessage(topicBeat, t.UnixMilli(), false))
		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if interval, ok := m["interval"].(float64); ok && interval > 0 {
					tick.Reset(time.Duration(interval) * time.Second)
					println("Info: heartbeat interval set to", int(interval), "seconds")
				}
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
