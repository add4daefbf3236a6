package ws

import (
	"log"
	"time"

	"github.com/talknow/signaling/internal/protocol"
)

// MessageHandler consumes one parsed client message. The msg value is the
// concrete struct produced by protocol.ParseClientMessage for the registered
// type (protocol.FindMatchMsg, protocol.SignalMsg, ...).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher parses raw frames and routes them by message type.
// Registration happens once at startup; Dispatch runs concurrently from the
// read workers, so the handler map is never mutated after that.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
}

// NewMessageDispatcher creates an empty dispatcher.
func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{handlers: make(map[string]MessageHandler)}
}

// Register binds a handler to a message type, replacing any previous one.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the server's onMessage callback. Malformed frames and
// unregistered types are answered with an error message on the same
// connection; ping is answered internally.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("ws: dispatch parse error participant=%s: %v", conn.ID, err)
		d.reply(conn, protocol.TypeError, protocol.ErrorMsg{Code: "parse_error", Message: "invalid message format"})
		return
	}

	if msgType == protocol.TypePing {
		conn.LastPing = time.Now()
		d.reply(conn, protocol.TypePong, protocol.PongMsg{})
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("ws: unsupported message type=%q participant=%s", msgType, conn.ID)
		d.reply(conn, protocol.TypeError, protocol.ErrorMsg{Code: "unsupported_type", Message: "unsupported message type"})
		return
	}

	handler(conn, msg)
}

func (d *MessageDispatcher) reply(conn *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("ws: build %s reply participant=%s: %v", msgType, conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: send %s reply participant=%s: %v", msgType, conn.ID, err)
	}
}
