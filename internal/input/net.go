package input

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// defaultBackoff is the wait before the single reconnect attempt.
const defaultBackoff = 3 * time.Second

// TCPSource streams I/Q samples from a TCP server (rtl_tcp style).
// A read failure triggers exactly one reconnect attempt after the
// backoff; a second failure surfaces ErrDeviceIO.
type TCPSource struct {
	address string
	format  Format
	log     zerolog.Logger

	conn    net.Conn
	raw     []byte
	pend    int
	retried bool

	// Backoff is overridable so tests do not sleep for real.
	Backoff time.Duration
}

// NewTCPSource dials the sample server.
func NewTCPSource(log zerolog.Logger, address string, format Format) (*TCPSource, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to sample server %s: %w", address, err)
	}
	log.Info().Str("address", address).Str("format", format.String()).Msg("sample stream connected")
	return &TCPSource{
		address: address,
		format:  format,
		log:     log,
		conn:    conn,
		raw:     make([]byte, 64*1024),
		Backoff: defaultBackoff,
	}, nil
}

func (s *TCPSource) Read(buf []complex64) (int, error) {
	for {
		n, err := s.conn.Read(s.raw[s.pend:])
		if err != nil {
			if s.retried {
				return 0, fmt.Errorf("sample stream lost: %w", ErrDeviceIO)
			}
			s.retried = true
			s.log.Warn().Err(err).Dur("backoff", s.Backoff).Msg("sample stream read failed, reconnecting")
			time.Sleep(s.Backoff)

			conn, dialErr := net.Dial("tcp", s.address)
			if dialErr != nil {
				return 0, fmt.Errorf("reconnect to %s failed: %w", s.address, ErrDeviceIO)
			}
			s.conn.Close()
			s.conn = conn
			s.pend = 0
			continue
		}
		s.retried = false

		avail := s.pend + n
		got := decodeBlock(s.format, s.raw[:avail], buf)
		used := got * s.format.BytesPerSample()
		s.pend = copy(s.raw, s.raw[used:avail])
		if got == 0 {
			continue // partial sample only, read more
		}
		return got, nil
	}
}

func (s *TCPSource) Close() error { return s.conn.Close() }

// UDPSource receives I/Q sample datagrams on a local port. Datagrams
// are assumed to carry whole samples; a trailing fragment is dropped.
type UDPSource struct {
	port    int
	format  Format
	log     zerolog.Logger
	conn    *net.UDPConn
	raw     []byte
	retried bool

	Backoff time.Duration
}

// NewUDPSource binds the receive port.
func NewUDPSource(log zerolog.Logger, port int, format Format) (*UDPSource, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("cannot bind sample port %d: %w", port, err)
	}
	log.Info().Int("port", port).Str("format", format.String()).Msg("sample port bound")
	return &UDPSource{
		port:    port,
		format:  format,
		log:     log,
		conn:    conn,
		raw:     make([]byte, 64*1024),
		Backoff: defaultBackoff,
	}, nil
}

func (s *UDPSource) Read(buf []complex64) (int, error) {
	for {
		n, _, err := s.conn.ReadFromUDP(s.raw)
		if err != nil {
			if s.retried {
				return 0, fmt.Errorf("sample port lost: %w", ErrDeviceIO)
			}
			s.retried = true
			s.log.Warn().Err(err).Dur("backoff", s.Backoff).Msg("sample port read failed, rebinding")
			time.Sleep(s.Backoff)

			conn, bindErr := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: s.port})
			if bindErr != nil {
				return 0, fmt.Errorf("rebind of port %d failed: %w", s.port, ErrDeviceIO)
			}
			s.conn.Close()
			s.conn = conn
			continue
		}
		s.retried = false

		got := decodeBlock(s.format, s.raw[:n], buf)
		if got == 0 {
			continue
		}
		return got, nil
	}
}

func (s *UDPSource) Close() error { return s.conn.Close() }
