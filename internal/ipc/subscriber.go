package ipc

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// PingInterval is how often a connected subscriber measures round trip.
const PingInterval = 2 * time.Second

// SubscriberStats are cumulative subscriber counters.
type SubscriberStats struct {
	Received   int64         `json:"received"`
	Reconnects int64         `json:"reconnects"`
	Errors     int64         `json:"errors"`
	Gaps       int64         `json:"gaps"` // snapshots skipped by sequence
	RTT        time.Duration `json:"rtt"`
}

// SnapshotHandler receives every decoded snapshot on the read goroutine.
type SnapshotHandler func(*WorldSnapshot)

// Subscriber receives authoritative snapshots and reconnects whenever the
// publisher goes away.
type Subscriber struct {
	socketPath string
	handler    SnapshotHandler

	conn   net.Conn
	connMu sync.Mutex

	latest atomic.Pointer[WorldSnapshot]

	hello   *HelloMessage
	helloMu sync.RWMutex
	helloCh chan HelloMessage

	received   atomic.Int64
	reconnects atomic.Int64
	errs       atomic.Int64
	gaps       atomic.Int64
	lastSeq    atomic.Uint64
	rtt        atomic.Int64
	pingSent   atomic.Int64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSubscriber creates a subscriber that hands snapshots to handler.
// handler may be nil when only Latest is used.
func NewSubscriber(socketPath string, handler SnapshotHandler) *Subscriber {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Subscriber{
		socketPath: socketPath,
		handler:    handler,
		helloCh:    make(chan HelloMessage, 1),
		stopCh:     make(chan struct{}),
	}
}

// Start begins connecting in the background.
func (s *Subscriber) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go s.connectionLoop()

	log.Printf("📡 IPC subscriber connecting to %s", GetPlatformAddress(s.socketPath))
}

// Stop disconnects and waits for the read goroutine to exit.
func (s *Subscriber) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	log.Println("📡 IPC subscriber stopped")
}

// Latest returns the most recent snapshot, or nil.
func (s *Subscriber) Latest() *WorldSnapshot {
	return s.latest.Load()
}

// Hello returns the publisher's hello, or nil before one arrived.
func (s *Subscriber) Hello() *HelloMessage {
	s.helloMu.RLock()
	defer s.helloMu.RUnlock()
	return s.hello
}

// WaitForHello blocks until the first hello arrives, the timeout passes or
// the subscriber stops.
func (s *Subscriber) WaitForHello(timeout time.Duration) (*HelloMessage, bool) {
	if h := s.Hello(); h != nil {
		return h, true
	}
	select {
	case h := <-s.helloCh:
		return &h, true
	case <-time.After(timeout):
		return nil, false
	case <-s.stopCh:
		return nil, false
	}
}

// Stats returns subscriber statistics
func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{
		Received:   s.received.Load(),
		Reconnects: s.reconnects.Load(),
		Errors:     s.errs.Load(),
		Gaps:       s.gaps.Load(),
		RTT:        time.Duration(s.rtt.Load()),
	}
}

// IsConnected returns whether the subscriber is connected
func (s *Subscriber) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *Subscriber) connectionLoop() {
	defer s.wg.Done()

	first := true
	for s.running.Load() {
		conn, err := ConnectPlatform(s.socketPath)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(ReconnectDelay):
				continue
			}
		}

		s.connMu.Lock()
		if !s.running.Load() {
			s.connMu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.connMu.Unlock()

		if !first {
			s.reconnects.Add(1)
		}
		first = false
		log.Printf("✅ Connected to snapshot feed at %s", GetPlatformAddress(s.socketPath))

		s.readLoop(conn)

		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()

		select {
		case <-s.stopCh:
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

func (s *Subscriber) readLoop(conn net.Conn) {
	nextPing := time.Now().Add(PingInterval)

	for s.running.Load() {
		if now := time.Now(); now.After(nextPing) {
			nextPing = now.Add(PingInterval)
			s.pingSent.Store(now.UnixNano())
			conn.SetWriteDeadline(now.Add(WriteTimeout))
			if err := WriteMessage(conn, MsgTypePing, nil); err != nil {
				s.errs.Add(1)
				return
			}
		}

		conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		msgType, data, err := ReadMessage(conn)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				log.Println("🔌 Snapshot feed closed")
			default:
				log.Printf("⚠️ IPC read error: %v", err)
				s.errs.Add(1)
			}
			return
		}

		switch msgType {
		case MsgTypeSnapshot:
			s.handleSnapshot(data)
		case MsgTypeHello:
			s.handleHello(data)
		case MsgTypePong:
			if sent := s.pingSent.Load(); sent > 0 {
				s.rtt.Store(time.Now().UnixNano() - sent)
			}
		}
	}
}

func (s *Subscriber) handleSnapshot(data []byte) {
	snapshot, err := DecodeSnapshot(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode snapshot: %v", err)
		s.errs.Add(1)
		return
	}

	// A restarted publisher begins at sequence 1 again.
	if last := s.lastSeq.Swap(snapshot.Sequence); last > 0 && snapshot.Sequence > last+1 {
		s.gaps.Add(int64(snapshot.Sequence - last - 1))
	}

	s.latest.Store(snapshot)
	s.received.Add(1)

	if s.handler != nil {
		s.handler(snapshot)
	}
}

func (s *Subscriber) handleHello(data []byte) {
	hello, err := DecodeHello(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode hello: %v", err)
		s.errs.Add(1)
		return
	}

	s.helloMu.Lock()
	s.hello = hello
	s.helloMu.Unlock()

	log.Printf("📺 Feed hello: preset=%s, %d Hz, half extent %.0f", hello.Preset, hello.TickRate, hello.HalfExtent)

	select {
	case s.helloCh <- *hello:
	default:
	}
}
