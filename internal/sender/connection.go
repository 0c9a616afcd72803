package sender

import (
	"sync"
	"time"

	"github.com/gregriff/lanmic/internal"
	"github.com/gregriff/lanmic/internal/protocol"
)

const (
	HelloInterval     = 2 * time.Second
	KeepAliveInterval = time.Second
	AcceptTimeout     = 5 * time.Second
)

// Connection is the sender's view of the handshake. It is Unaccepted until the receiver
// answers with an Accept carrying this session's id, and falls back to Unaccepted when no
// Accept has been seen for AcceptTimeout. Safe for concurrent use.
type Connection struct {
	session uint32

	mu            sync.Mutex
	accepted      bool
	everAccepted  bool
	lastAccept    time.Time
	lastHello     time.Time
	lastKeepAlive time.Time
}

func NewConnection(session uint32) *Connection {
	return &Connection{session: session}
}

func (c *Connection) Session() uint32 { return c.session }

func (c *Connection) Accepted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accepted
}

// OnAccept records an Accept. Accepts for other sessions are ignored. It reports whether
// the connection just became accepted.
func (c *Connection) OnAccept(now time.Time, session uint32) bool {
	if session != c.session {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastAccept = now
	if c.accepted {
		return false
	}
	c.accepted, c.everAccepted = true, true
	return true
}

// Expire drops an accepted connection that has gone quiet. It reports whether it did.
func (c *Connection) Expire(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepted || now.Sub(c.lastAccept) <= AcceptTimeout {
		return false
	}
	c.accepted = false
	// retry the handshake on the next tick
	c.lastHello = time.Time{}
	return true
}

// Due returns the control packet that should go out at now, if any: a Hello while
// unaccepted, a KeepAlive while accepted.
func (c *Connection) Due(now time.Time) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepted {
		if !c.lastHello.IsZero() && now.Sub(c.lastHello) < HelloInterval {
			return nil
		}
		c.lastHello = now
		return protocol.BuildHello(c.session)
	}

	if !c.lastKeepAlive.IsZero() && now.Sub(c.lastKeepAlive) < KeepAliveInterval {
		return nil
	}
	c.lastKeepAlive = now
	return protocol.BuildKeepAlive(c.session)
}

// state returns the status text for the current handshake state.
func (c *Connection) state() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.accepted:
		return internal.StatusConnected
	case c.everAccepted:
		return internal.StatusReconnecting
	default:
		return internal.StatusConnecting
	}
}
