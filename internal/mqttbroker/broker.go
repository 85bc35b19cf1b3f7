package mqttbroker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	connectTimeout = 10 * time.Second
	writeTimeout   = 5 * time.Second
)

// PublishMessage represents a QoS 0 publish received from a client.
type PublishMessage struct {
	ClientID string
	Topic    string
	Payload  []byte
}

// Handler is invoked for each received publish message. It runs on the
// publishing client's read loop, so a client's messages are handled in order.
type Handler func(context.Context, PublishMessage)

type clientSession struct {
	conn      net.Conn
	reader    *bufio.Reader
	writeMu   sync.Mutex
	clientID  string
	keepAlive time.Duration
	closed    atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]struct{}
}

func newSession(conn net.Conn) *clientSession {
	return &clientSession{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		subscriptions: make(map[string]struct{}),
	}
}

func (c *clientSession) matches(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for filter := range c.subscriptions {
		if topicMatches(filter, topic) {
			return true
		}
	}
	return false
}

func (c *clientSession) subscribe(filter string) {
	c.subMu.Lock()
	c.subscriptions[filter] = struct{}{}
	c.subMu.Unlock()
}

func (c *clientSession) unsubscribe(filters []string) {
	c.subMu.Lock()
	for _, f := range filters {
		delete(c.subscriptions, f)
	}
	c.subMu.Unlock()
}

func (c *clientSession) writePacket(packet []byte) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.conn.Write(packet)
	return err
}

// extendDeadline allows one and a half keep-alive periods of silence before
// the connection is dropped. A zero keep-alive disables the check.
func (c *clientSession) extendDeadline() {
	if c.keepAlive <= 0 {
		_ = c.conn.SetReadDeadline(time.Time{})
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.keepAlive + c.keepAlive/2))
}

// Broker is a minimal MQTT v3.1.1 broker for device ingestion. It accepts QoS 0
// publishes, hands them to the installed Handler and lets clients subscribe
// to server-originated messages such as receipts. Client publishes are not
// relayed to other clients.
type Broker struct {
	logger        *slog.Logger
	maxPacketSize int
	listener     net.Listener
	handler      atomic.Value // stores Handler
	mu           sync.Mutex
	wg           sync.WaitGroup
	shuttingDown atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	clientsMu sync.RWMutex
	clients   map[*clientSession]struct{}
}

// DefaultMaxPacketSize caps the remaining length of client packets.
const DefaultMaxPacketSize = 4 << 20

// Option customises a Broker.
type Option func(*Broker)

// WithMaxPacketSize limits the remaining length a client packet may declare.
// Clients exceeding it are disconnected before the body is read.
func WithMaxPacketSize(n int) Option {
	return func(b *Broker) {
		if n > 0 && n <= maxRemainingLength {
			b.maxPacketSize = n
		}
	}
}

// New constructs a broker with the supplied logger.
func New(logger *slog.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		logger:        logger.With("component", "mqtt"),
		maxPacketSize: DefaultMaxPacketSize,
		ctx:           ctx,
		cancel:        cancel,
		clients:       make(map[*clientSession]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.handler.Store(Handler(func(context.Context, PublishMessage) {}))
	return b
}

// Start begins listening for MQTT clients on the provided bind address.
// The returned channel is closed once the accept loop terminates; fatal errors are sent on it.
func (b *Broker) Start(bind string) (<-chan error, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("mqtt listen: %w", err)
	}

	b.mu.Lock()
	b.listener = ln
	b.mu.Unlock()

	errCh := make(chan error, 1)

	b.logger.Info("mqtt broker listening", "addr", ln.Addr().String())

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(errCh)
		for {
			conn, err := ln.Accept()
			if err != nil {
				if b.shuttingDown.Load() || errors.Is(err, net.ErrClosed) {
					return
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					b.logger.Warn("temporary accept error", "error", err)
					time.Sleep(50 * time.Millisecond)
					continue
				}
				errCh <- fmt.Errorf("mqtt accept: %w", err)
				return
			}
			b.serve(conn)
		}
	}()

	return errCh, nil
}

// Addr reports the listening address, or nil before Start.
func (b *Broker) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// serve runs a session for conn until the client disconnects or the broker stops.
func (b *Broker) serve(conn net.Conn) {
	if b.shuttingDown.Load() {
		_ = conn.Close()
		return
	}
	session := newSession(conn)
	b.addClient(session)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleConn(session)
	}()
}

// Stop shuts down the broker and releases resources. In-flight handlers see
// their context cancelled.
func (b *Broker) Stop() error {
	if !b.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()

	b.mu.Lock()
	ln := b.listener
	b.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	b.clientsMu.Lock()
	for session := range b.clients {
		session.closed.Store(true)
		_ = session.conn.Close()
	}
	b.clients = make(map[*clientSession]struct{})
	b.clientsMu.Unlock()

	b.wg.Wait()
	return nil
}

// SetPublishHandler installs the function invoked for each received publish.
func (b *Broker) SetPublishHandler(h Handler) {
	if h == nil {
		h = func(context.Context, PublishMessage) {}
	}
	b.handler.Store(h)
}

// Publish sends a QoS 0 message to every client with a matching subscription.
func (b *Broker) Publish(topic string, payload []byte) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	packet, err := buildPublishPacket(topic, payload)
	if err != nil {
		return err
	}

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for session := range b.clients {
		if session.matches(topic) {
			if err := session.writePacket(packet); err != nil {
				b.logger.Warn("publish to subscriber failed", "client", session.clientID, "topic", topic, "error", err)
			}
		}
	}
	return nil
}

// ClientCount reports the number of open client connections.
func (b *Broker) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

func (b *Broker) addClient(session *clientSession) {
	b.clientsMu.Lock()
	b.clients[session] = struct{}{}
	b.clientsMu.Unlock()
}

func (b *Broker) removeClient(session *clientSession) {
	b.clientsMu.Lock()
	delete(b.clients, session)
	b.clientsMu.Unlock()
}

func (b *Broker) handleConn(session *clientSession) {
	defer func() {
		session.closed.Store(true)
		b.removeClient(session)
		_ = session.conn.Close()
	}()

	_ = session.conn.SetReadDeadline(time.Now().Add(connectTimeout))
	first, err := readPacket(session.reader, b.maxPacketSize)
	if err != nil {
		if errors.Is(err, errPacketTooLarge) {
			b.logger.Warn("oversized packet before connect", "remote", session.conn.RemoteAddr(), "error", err)
		} else {
			b.logger.Debug("read connect error", "error", err)
		}
		return
	}
	if first.kind() != packetConnect {
		b.logger.Debug("first packet is not CONNECT", "type", first.kind())
		return
	}
	if err := b.handleConnect(session, first.body); err != nil {
		b.logger.Debug("handle connect error", "error", err)
		return
	}
	b.logger.Debug("client connected", "client", session.clientID, "keepalive", session.keepAlive)

	for {
		session.extendDeadline()

		p, err := readPacket(session.reader, b.maxPacketSize)
		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, errPacketTooLarge):
				b.logger.Warn("oversized packet", "client", session.clientID, "error", err)
			case errors.As(err, &ne) && ne.Timeout():
				b.logger.Info("client keep-alive expired", "client", session.clientID)
			default:
				b.logger.Debug("read packet error", "client", session.clientID, "error", err)
			}
			return
		}

		switch p.kind() {
		case packetPublish:
			msg, err := parsePublish(p.header, p.body)
			if err != nil {
				b.logger.Debug("parse publish error", "client", session.clientID, "error", err)
				return
			}
			msg.ClientID = session.clientID
			if h, ok := b.handler.Load().(Handler); ok {
				safeInvoke(h, b.ctx, msg, b.logger)
			}
		case packetSubscribe:
			if err := b.handleSubscribe(session, p.body); err != nil {
				b.logger.Debug("handle subscribe error", "client", session.clientID, "error", err)
				return
			}
		case packetUnsubscribe:
			if err := b.handleUnsubscribe(session, p.body); err != nil {
				b.logger.Debug("handle unsubscribe error", "client", session.clientID, "error", err)
				return
			}
		case packetPingReq:
			if err := session.writePacket(pingResp); err != nil {
				b.logger.Debug("write pingresp error", "error", err)
				return
			}
		case packetDisconnect:
			return
		default:
			b.logger.Debug("unsupported packet", "client", session.clientID, "type", p.kind())
			return
		}
	}
}

func (b *Broker) handleConnect(session *clientSession, body []byte) error {
	req, code, err := parseConnect(body)
	if err != nil {
		if code != connAccepted {
			_ = session.writePacket(buildConnAck(code))
		}
		return err
	}

	if req.clientID == "" {
		req.clientID = "anon-" + uuid.NewString()
	}
	session.clientID = req.clientID
	session.keepAlive = time.Duration(req.keepAlive) * time.Second

	if err := session.writePacket(buildConnAck(connAccepted)); err != nil {
		return fmt.Errorf("write connack: %w", err)
	}
	return nil
}

func (b *Broker) handleSubscribe(session *clientSession, body []byte) error {
	packetID, filters, err := parseSubscribe(body)
	if err != nil {
		return err
	}

	codes := make([]byte, len(filters))
	for i, filter := range filters {
		if err := validFilter(filter); err != nil {
			b.logger.Debug("rejecting subscription", "client", session.clientID, "error", err)
			codes[i] = subAckFailure
			continue
		}
		session.subscribe(filter)
		codes[i] = 0x00 // granted QoS 0
	}

	return session.writePacket(buildSubAck(packetID, codes))
}

func (b *Broker) handleUnsubscribe(session *clientSession, body []byte) error {
	packetID, filters, err := parseUnsubscribe(body)
	if err != nil {
		return err
	}
	session.unsubscribe(filters)
	return session.writePacket(buildUnsubAck(packetID))
}

func safeInvoke(h Handler, ctx context.Context, msg PublishMessage, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("publish handler panic", "topic", msg.Topic, "panic", r)
		}
	}()
	h(ctx, msg)
}
