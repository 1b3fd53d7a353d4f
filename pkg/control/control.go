// Package control implements ControlClient, the UDP PING/PONG/SETUP
// protocol a node and this daemon exchange on port 7284 to discover
// and (re)configure a node's destination/SNTP addresses (spec.md
// §4.6). Ported from original_source/sn2daemon/control_protocol.py:
// the big-endian SetupPacket layout, the 5-byte (type, msg_id)
// correlation key, and un_C_str's NUL-terminated ASCII decoding carry
// over unchanged; msg_id generation moves from Python's
// random.SystemRandom() to github.com/pion/randutil's
// crypto/rand-backed generator, a dependency the teacher already
// carries indirectly through its pion stack.
package control

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/randutil"
	"golang.org/x/sys/unix"

	"github.com/sn2d/ingestd/pkg/logger"
	"github.com/sn2d/ingestd/pkg/sn2derr"
)

// MsgType selects a control datagram's meaning.
type MsgType uint8

const (
	Ping  MsgType = 0
	Pong  MsgType = 1
	Setup MsgType = 2
)

const (
	nodePort   = 7284
	addrFields = 16
	// type(1) + msg_id(4) + version(1) + dest_addr(16) + sntp_addr(16)
	setupPacketSize = 1 + 4 + 1 + addrFields + addrFields
	correlationSize = 5
)

// correlationKey is the first 5 bytes of a SETUP request/response:
// {type, msg_id}, big-endian, the protocol's sole correlation mechanism.
type correlationKey [correlationSize]byte

func keyOf(buf []byte) correlationKey {
	var k correlationKey
	copy(k[:], buf[:correlationSize])
	return k
}

// decodeCString decodes a fixed-width NUL-padded ASCII field, the Go
// equivalent of original_source/sn2daemon/control_protocol.py's
// un_C_str.
func decodeCString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// encodeCString renders s as a fixed-width NUL-padded ASCII field. s
// must encode to fewer than width bytes.
func encodeCString(s string, width int) ([]byte, error) {
	if len(s) >= width {
		return nil, fmt.Errorf("%q is %d bytes, must be < %d", s, len(s), width)
	}
	out := make([]byte, width)
	copy(out, s)
	return out, nil
}

// pendingRequest is an in-flight SETUP awaiting its matching response.
type pendingRequest struct {
	result chan setupResponse
}

type setupResponse struct {
	peer       net.Addr
	version    uint8
	destAddr   string
	sntpAddr   string
}

// Client drives the UDP control protocol over a single socket.
// Multiple outstanding requests are distinguished by msg_id; the
// receive loop routes a response to its awaiter or discards it.
type Client struct {
	conn *net.UDPConn

	mu      sync.Mutex
	waiters map[correlationKey]*pendingRequest

	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the control socket bound to localAddr (host:port, port 0
// for an ephemeral port) and, best-effort, enables SO_BROADCAST so
// detect() can reach nodes via a subnet broadcast address, mirroring
// connection_made's setsockopt in the original asyncio transport.
func Dial(localAddr string) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp4", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve local control address %q: %w", localAddr, err)
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %q: %w", localAddr, err)
	}

	if err := setBroadcast(conn); err != nil {
		logger.Default().Control().Warn().Err(err).Msg("could not enable SO_BROADCAST on control socket")
	}

	c := &Client{
		conn:    conn,
		waiters: make(map[correlationKey]*pendingRequest),
		done:    make(chan struct{}),
	}
	go c.receiveLoop()
	return c, nil
}

func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Close releases the underlying socket. Pending requests are not
// woken: each returns a TimeoutError once its own timeout elapses, or
// earlier if its context is cancelled.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *Client) receiveLoop() {
	buf := make([]byte, 256)
	for {
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				logger.Default().Control().Debug().Err(err).Msg("control socket read error")
				return
			}
		}
		c.handleFrame(buf[:n], addr)
	}
}

func (c *Client) handleFrame(buf []byte, addr net.Addr) {
	if len(buf) < correlationSize {
		logger.Default().Control().Debug().Int("len", len(buf)).Msg("received corrupted control frame")
		return
	}

	key := keyOf(buf)

	c.mu.Lock()
	req, ok := c.waiters[key]
	if ok {
		delete(c.waiters, key)
	}
	c.mu.Unlock()

	if !ok {
		logger.Default().Control().Debug().Msg("received unexpected control frame")
		return
	}

	if len(buf) < setupPacketSize {
		logger.Default().Control().Debug().Msg("matched control frame too short to decode")
		return
	}

	resp := setupResponse{
		peer:     addr,
		version:  buf[5],
		destAddr: decodeCString(buf[6 : 6+addrFields]),
		sntpAddr: decodeCString(buf[6+addrFields : 6+2*addrFields]),
	}

	select {
	case req.result <- resp:
	default:
	}
}

func (c *Client) register(key correlationKey) *pendingRequest {
	req := &pendingRequest{result: make(chan setupResponse, 1)}
	c.mu.Lock()
	c.waiters[key] = req
	c.mu.Unlock()
	return req
}

func (c *Client) unregister(key correlationKey) {
	c.mu.Lock()
	delete(c.waiters, key)
	c.mu.Unlock()
}

func randomMsgID() (uint32, error) {
	v, err := randutil.CryptoUint64()
	if err != nil {
		return 0, fmt.Errorf("generate msg_id: %w", err)
	}
	return uint32(v), nil
}

func buildSetup(msgID uint32, version uint8, dest, sntp []byte) []byte {
	buf := make([]byte, setupPacketSize)
	buf[0] = byte(Setup)
	binary.BigEndian.PutUint32(buf[1:5], msgID)
	buf[5] = version
	copy(buf[6:6+addrFields], dest)
	copy(buf[6+addrFields:6+2*addrFields], sntp)
	return buf
}

// DetectResult reports a node's current destination/SNTP
// configuration and the measured round-trip time of the detect probe.
type DetectResult struct {
	PeerAddr string
	DestAddr string
	SNTPAddr string
	RTT      time.Duration
}

// Detect sends a zero-address SETUP probe to remoteHost:7284 and waits
// for the matching response, decoding the node's currently configured
// addresses.
func (c *Client) Detect(ctx context.Context, remoteHost string, timeout time.Duration) (DetectResult, error) {
	msgID, err := randomMsgID()
	if err != nil {
		return DetectResult{}, err
	}

	zero := make([]byte, addrFields)
	pkt := buildSetup(msgID, 0, zero, zero)
	key := keyOf(pkt)

	req := c.register(key)
	defer c.unregister(key)

	addr := &net.UDPAddr{IP: net.ParseIP(remoteHost), Port: nodePort}
	if addr.IP == nil {
		resolved, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", remoteHost, nodePort))
		if err != nil {
			return DetectResult{}, fmt.Errorf("resolve %s: %w", remoteHost, err)
		}
		addr = resolved
	}

	sendTime := time.Now()
	if _, err := c.conn.WriteToUDP(pkt, addr); err != nil {
		return DetectResult{}, fmt.Errorf("send detect probe: %w", err)
	}

	select {
	case resp := <-req.result:
		return DetectResult{
			PeerAddr: resp.peer.String(),
			DestAddr: resp.destAddr,
			SNTPAddr: resp.sntpAddr,
			RTT:      time.Since(sendTime),
		}, nil
	case <-time.After(timeout):
		return DetectResult{}, &sn2derr.TimeoutError{Op: "control.detect"}
	case <-ctx.Done():
		return DetectResult{}, ctx.Err()
	}
}

// Configure sends a populated SETUP frame to remoteHost:7284 and waits
// for the matching acknowledgement. dest and sntp must each encode to
// fewer than 16 ASCII bytes.
func (c *Client) Configure(ctx context.Context, remoteHost, dest, sntp string, timeout time.Duration) error {
	destBytes, err := encodeCString(dest, addrFields)
	if err != nil {
		return fmt.Errorf("dest_addr: %w", err)
	}
	sntpBytes, err := encodeCString(sntp, addrFields)
	if err != nil {
		return fmt.Errorf("sntp_addr: %w", err)
	}

	msgID, err := randomMsgID()
	if err != nil {
		return err
	}

	pkt := buildSetup(msgID, 0, destBytes, sntpBytes)
	key := keyOf(pkt)

	req := c.register(key)
	defer c.unregister(key)

	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", remoteHost, nodePort))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", remoteHost, err)
	}

	if _, err := c.conn.WriteToUDP(pkt, addr); err != nil {
		return fmt.Errorf("send configure: %w", err)
	}

	select {
	case <-req.result:
		return nil
	case <-time.After(timeout):
		return &sn2derr.TimeoutError{Op: "control.configure"}
	case <-ctx.Done():
		return ctx.Err()
	}
}
