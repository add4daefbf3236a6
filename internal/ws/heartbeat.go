package ws

import (
	"log"
	"time"

	"github.com/gobwas/ws"
)

// HeartbeatConfig tunes the liveness sweep.
type HeartbeatConfig struct {
	Interval time.Duration // sweep period
	Timeout  time.Duration // grace on top of Interval before eviction
}

// DefaultHeartbeatConfig returns the production sweep settings.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{Interval: 30 * time.Second, Timeout: 10 * time.Second}
}

// StartHeartbeat runs the liveness sweep in a background goroutine until the
// server's done channel closes. Each sweep evicts connections with no read
// activity inside Interval+Timeout and pings the rest; browsers answer the
// protocol-level ping automatically, and any received frame refreshes
// LastPing.
func StartHeartbeat(server *Server, config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-server.done:
				return
			case <-ticker.C:
				server.sweepStale(config.Interval + config.Timeout)
			}
		}
	}()
}

// sweepStale evicts connections idle past the deadline and pings the rest.
func (s *Server) sweepStale(deadline time.Duration) {
	now := time.Now()
	for _, c := range s.conns.All() {
		idle := now.Sub(c.LastPing)
		if idle > deadline {
			log.Printf("ws: heartbeat timeout participant=%s idle=%s", c.ID, idle.Round(time.Second))
			s.RemoveConnection(c)
			continue
		}
		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed participant=%s: %v", c.ID, err)
			s.RemoveConnection(c)
		}
	}
}

// WritePing sends a protocol-level ping frame, serialized with application
// writes by the connection's write mutex.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}
