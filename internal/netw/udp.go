// Package netw owns the UDP sockets that carry lanmic datagrams.
package netw

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gregriff/lanmic/internal/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

var log = logrus.WithField("component", "netw")

const (
	// ReadTimeout bounds each read so loops notice cancellation promptly.
	ReadTimeout = 100 * time.Millisecond

	socketBufferBytes = 1 << 20

	// DSCP EF (46) shifted into the TOS byte
	tosExpedited = 0xb8
)

// ErrNoPacket is returned by ReadPacket when the read deadline passed or the datagram was
// not a lanmic packet. Callers simply read again.
var ErrNoPacket = errors.New("no packet")

// ErrTooLarge is returned for a datagram the other end could not read whole.
var ErrTooLarge = errors.New("datagram exceeds protocol.MaxDatagram")

// Conn is a UDP socket. A dialed Conn remembers its peer; a listening Conn replies to
// whatever address a packet came from.
type Conn struct {
	udp  *net.UDPConn
	peer *net.UDPAddr
	buf  []byte
}

// Listen binds addr, e.g. ":48750".
func Listen(addr string) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("error resolving listen address %q: %w", addr, err)
	}
	udp, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("error binding %s: %w", addr, err)
	}
	return newConn(udp, nil), nil
}

// Dial resolves target ("host:port") and binds an ephemeral local port for talking to it.
// The socket is left unconnected so ICMP errors from an absent receiver do not surface
// as read failures while the sender keeps retrying its handshake.
func Dial(target string) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("error resolving target %q: %w", target, err)
	}
	udp, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("error binding local socket: %w", err)
	}
	return newConn(udp, raddr), nil
}

func newConn(udp *net.UDPConn, peer *net.UDPAddr) *Conn {
	if err := udp.SetReadBuffer(socketBufferBytes); err != nil {
		log.WithError(err).Debug("could not raise socket read buffer")
	}
	if err := udp.SetWriteBuffer(socketBufferBytes); err != nil {
		log.WithError(err).Debug("could not raise socket write buffer")
	}
	if err := ipv4.NewConn(udp).SetTOS(tosExpedited); err != nil {
		log.WithError(err).Debug("could not mark socket expedited forwarding")
	}

	log.WithFields(logrus.Fields{"local": udp.LocalAddr(), "peer": peer}).Debug("udp socket open")
	return &Conn{udp: udp, peer: peer, buf: make([]byte, protocol.MaxDatagram)}
}

// LocalAddr is the bound address; useful after binding port 0.
func (c *Conn) LocalAddr() *net.UDPAddr {
	return c.udp.LocalAddr().(*net.UDPAddr)
}

// Peer returns the dial target, or nil for a listening socket.
func (c *Conn) Peer() *net.UDPAddr { return c.peer }

// Send writes one datagram to the dial target.
func (c *Conn) Send(b []byte) error {
	if c.peer == nil {
		return errors.New("send on a listening socket without a peer")
	}
	return c.SendTo(b, c.peer)
}

func (c *Conn) SendTo(b []byte, addr *net.UDPAddr) error {
	if len(b) > protocol.MaxDatagram {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	if _, err := c.udp.WriteToUDP(b, addr); err != nil {
		return fmt.Errorf("error sending to %s: %w", addr, err)
	}
	return nil
}

// ReadPacket waits at most ReadTimeout for one datagram and parses it. The returned
// packet's payload does not alias the read buffer. Not safe for concurrent use.
func (c *Conn) ReadPacket() (protocol.Packet, *net.UDPAddr, error) {
	if err := c.udp.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return protocol.Packet{}, nil, fmt.Errorf("error setting read deadline: %w", err)
	}

	n, addr, err := c.udp.ReadFromUDP(c.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return protocol.Packet{}, nil, ErrNoPacket
		}
		return protocol.Packet{}, nil, fmt.Errorf("error reading socket: %w", err)
	}

	pkt, ok := protocol.Parse(c.buf[:n])
	if !ok {
		return protocol.Packet{}, addr, ErrNoPacket
	}
	return pkt, addr, nil
}

func (c *Conn) Close() error {
	return c.udp.Close()
}

// IsClosed reports whether err came from using a closed socket.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
