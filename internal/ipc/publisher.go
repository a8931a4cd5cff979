package ipc

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// PublisherStats are cumulative publisher counters.
type PublisherStats struct {
	Clients int   `json:"clients"`
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
}

// Publisher broadcasts authoritative snapshots to connected mirrors.
// Publish never blocks the simulation: when the queue is full the oldest
// snapshot is dropped.
type Publisher struct {
	socketPath string
	listener   net.Listener

	clients   map[net.Conn]struct{}
	clientsMu sync.RWMutex

	snapshotCh chan *WorldSnapshot

	hello   HelloMessage
	helloMu sync.RWMutex

	clientCount   atomic.Int32
	snapshotsSent atomic.Int64
	droppedFrames atomic.Int64
	sequence      atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a new IPC publisher
func NewPublisher(socketPath string) *Publisher {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Publisher{
		socketPath: socketPath,
		clients:    make(map[net.Conn]struct{}),
		snapshotCh: make(chan *WorldSnapshot, 8),
		stopCh:     make(chan struct{}),
	}
}

// SetHello sets the message sent to every new subscriber.
func (p *Publisher) SetHello(hello HelloMessage) {
	p.helloMu.Lock()
	p.hello = hello
	p.helloMu.Unlock()
}

// Start opens the listener and starts the accept and broadcast loops.
func (p *Publisher) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return nil
	}

	listener, err := CreatePlatformListener(p.socketPath)
	if err != nil {
		p.running.Store(false)
		return err
	}
	p.listener = listener

	p.wg.Add(2)
	go p.acceptLoop()
	go p.broadcastLoop()

	log.Printf("📡 IPC publisher started on %s", GetPlatformAddress(p.socketPath))
	return nil
}

// Stop closes the listener and every client. Safe to call repeatedly.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	close(p.stopCh)
	p.listener.Close()

	p.clientsMu.Lock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clients = make(map[net.Conn]struct{})
	p.clientCount.Store(0)
	p.clientsMu.Unlock()

	p.wg.Wait()

	CleanupSocket(p.socketPath)
	log.Println("📡 IPC publisher stopped")
}

// Publish queues a snapshot for broadcast, dropping the oldest queued
// snapshot when the buffer is full. Sequence and timestamp are assigned here.
func (p *Publisher) Publish(snapshot WorldSnapshot) {
	if !p.running.Load() {
		return
	}
	snapshot.Sequence = p.sequence.Add(1)
	if snapshot.Timestamp == 0 {
		snapshot.Timestamp = time.Now().UnixNano()
	}
	msg := &snapshot

	select {
	case p.snapshotCh <- msg:
		return
	default:
	}

	select {
	case <-p.snapshotCh:
		p.droppedFrames.Add(1)
	default:
	}
	select {
	case p.snapshotCh <- msg:
	default:
		p.droppedFrames.Add(1)
	}
}

// Stats returns publisher statistics
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Clients: int(p.clientCount.Load()),
		Sent:    p.snapshotsSent.Load(),
		Dropped: p.droppedFrames.Load(),
	}
}

func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for p.running.Load() {
		conn, err := p.listener.Accept()
		if err != nil {
			if !p.running.Load() {
				return
			}
			log.Printf("⚠️ IPC accept error: %v", err)
			select {
			case <-p.stopCh:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		p.addClient(conn)
	}
}

// addClient sends the hello and registers the connection for broadcasts.
func (p *Publisher) addClient(conn net.Conn) {
	p.helloMu.RLock()
	hello := p.hello
	p.helloMu.RUnlock()

	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := WriteMessage(conn, MsgTypeHello, hello); err != nil {
		log.Printf("⚠️ Failed to send hello to mirror: %v", err)
		conn.Close()
		return
	}

	p.clientsMu.Lock()
	if !p.running.Load() {
		p.clientsMu.Unlock()
		conn.Close()
		return
	}
	p.clients[conn] = struct{}{}
	count := p.clientCount.Add(1)
	p.clientsMu.Unlock()

	log.Printf("✅ Mirror connected (total: %d)", count)

	// Mirrors only ever send pings; drain them so the socket never fills.
	p.wg.Add(1)
	go p.readLoop(conn)
}

// readLoop answers pings and notices disconnects.
func (p *Publisher) readLoop(conn net.Conn) {
	defer p.wg.Done()
	defer p.removeClient(conn)

	for {
		msgType, _, err := ReadMessage(conn)
		if err != nil {
			return
		}
		if msgType == MsgTypePing {
			p.clientsMu.RLock()
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			err := WriteMessage(conn, MsgTypePong, nil)
			p.clientsMu.RUnlock()
			if err != nil {
				return
			}
		}
	}
}

func (p *Publisher) removeClient(conn net.Conn) {
	p.clientsMu.Lock()
	_, ok := p.clients[conn]
	if ok {
		delete(p.clients, conn)
	}
	p.clientsMu.Unlock()
	conn.Close()

	if ok {
		count := p.clientCount.Add(-1)
		log.Printf("🔌 Mirror disconnected (remaining: %d)", count)
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case snapshot := <-p.snapshotCh:
			p.broadcast(snapshot)
		}
	}
}

// broadcast encodes once and writes the frame to every client.
func (p *Publisher) broadcast(snapshot *WorldSnapshot) {
	frame, err := EncodeFrame(MsgTypeSnapshot, snapshot)
	if err != nil {
		log.Printf("⚠️ IPC snapshot encode failed: %v", err)
		p.droppedFrames.Add(1)
		return
	}

	// The write lock keeps frames from interleaving with pongs.
	p.clientsMu.Lock()
	var failed []net.Conn
	for conn := range p.clients {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if _, err := conn.Write(frame); err != nil {
			failed = append(failed, conn)
		}
	}
	sent := len(p.clients) - len(failed)
	p.clientsMu.Unlock()

	for _, conn := range failed {
		p.removeClient(conn)
	}
	if sent > 0 {
		p.snapshotsSent.Add(1)
	}
}
