package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"sync"
	"time"
)

// ActionMessageHandler processes one inbound ActionMessage read off a
// Stream. It is analogous to the teacher's EnvelopeHandler but works on
// the binary-framed ActionMessage rather than newline-JSON envelopes,
// since §6 requires byte-exact ActionMessage framing rather than JSON.
type ActionMessageHandler func(msg ActionMessage, conn net.Conn) error

// Transport is a TLS-secured, binary-framed carrier for ActionMessages
// between two nodes (broker<->broker, broker<->core). It mirrors the
// teacher's Transport (self-signed cert generation, handler registry,
// one goroutine per accepted connection) but frames payloads with
// Packetize/Depacketize instead of newline-delimited JSON.
type Transport struct {
	identity  Identity
	tlsConfig *tls.Config
	handlers  map[ActionCode]ActionMessageHandler
	mu        sync.RWMutex
}

func NewTransport(identity Identity) *Transport {
	return &Transport{
		identity: identity,
		handlers: make(map[ActionCode]ActionMessageHandler),
	}
}

// GenerateSelfSignedCert produces a one-shot TLS identity for this
// node's listener, matching the teacher's ed25519-signed certificate
// approach in transport.go.
func (t *Transport) GenerateSelfSignedCert() error {
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"cosim-core node"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},

		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, t.identity.Public, t.identity.private)
	if err != nil {
		return NewError(SystemFailure, "generating self-signed cert", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return NewError(SystemFailure, "parsing generated cert", err)
	}

	t.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{certDER},
			PrivateKey:  t.identity.private,
			Leaf:        cert,
		}},
		MinVersion: tls.VersionTLS13,
	}
	return nil
}

// RegisterHandler wires a handler for one ActionCode.
func (t *Transport) RegisterHandler(action ActionCode, handler ActionMessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[action] = handler
}

// Listen accepts TLS connections on address, dispatching every framed
// ActionMessage on each connection to its registered handler, one
// goroutine per connection; a connection's goroutine ends when a read
// fails. Listen returns only if the listener cannot be opened: accept
// errors are skipped and the accept loop continues.
func (t *Transport) Listen(address string) error {
	if t.tlsConfig == nil {
		if err := t.GenerateSelfSignedCert(); err != nil {
			return err
		}
	}
	listener, err := tls.Listen("tcp", address, t.tlsConfig)
	if err != nil {
		return NewError(SystemFailure, "listening for connections", err)
	}
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			continue
		}
		go t.handleConnection(conn)
	}
}

func (t *Transport) handleConnection(conn net.Conn) {
	defer conn.Close()
	stream := NewStream(conn)
	for {
		msg, err := stream.Read()
		if err != nil {
			return
		}
		t.mu.RLock()
		handler, ok := t.handlers[msg.Action]
		t.mu.RUnlock()
		if ok {
			if err := handler(msg, conn); err != nil {
				continue
			}
		}
	}
}

// Dial connects to endpoint and returns a Stream ready for
// Read/Write, mirroring the teacher's insecure-skip-verify client
// posture: the peer's certificate chain is not verified, and no other
// authentication of the peer takes place.
func Dial(endpoint string) (*Stream, error) {
	conn, err := tls.Dial("tcp", endpoint, &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
	})
	if err != nil {
		return nil, NewError(SystemFailure, "dialing peer", err)
	}
	return NewStream(conn), nil
}

// Stream wraps a net.Conn with ActionMessage framing and read
// buffering, analogous to the teacher's bufio.Scanner-based line
// reader but for the binary sentinel/length/tail format.
type Stream struct {
	conn net.Conn
	mu   sync.Mutex
	buf  []byte
}

func NewStream(conn net.Conn) *Stream {
	return &Stream{conn: conn, buf: make([]byte, 0, 4096)}
}

// Write packetizes and sends one ActionMessage.
func (s *Stream) Write(msg ActionMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Write(msg.Packetize())
	if err != nil {
		return NewError(SystemFailure, "writing action message", err)
	}
	return nil
}

// Read blocks until one complete ActionMessage has been read off the
// connection, buffering partial frames across multiple conn.Read calls.
func (s *Stream) Read() (ActionMessage, error) {
	for {
		if msg, n, err := Depacketize(s.buf); err == nil {
			s.buf = append([]byte(nil), s.buf[n:]...)
			return msg, nil
		} else if !errors.Is(err, ErrIncompleteFrame) {
			return ActionMessage{}, err
		}

		chunk := make([]byte, 4096)
		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil {
			return ActionMessage{}, NewError(SystemFailure, "reading from connection", err)
		}
	}
}

func (s *Stream) Close() error { return s.conn.Close() }

var _ = ed25519.PublicKeySize
