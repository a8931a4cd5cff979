// Package ipc carries the authoritative arena state from the server to
// mirror processes over a local socket. Frames are an 8-byte header
// followed by a msgpack body.
package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game"
)

const (
	// DefaultSocketPath is the Unix socket path for IPC
	DefaultSocketPath = "/tmp/cyber-cycles.sock"

	// DefaultTCPAddr is used instead of a socket file on Windows.
	DefaultTCPAddr = "127.0.0.1:9797"

	// Message types
	MsgTypeSnapshot byte = 0x01
	MsgTypePing     byte = 0x02
	MsgTypePong     byte = 0x03
	MsgTypeHello    byte = 0x04

	// ProtocolVersion is checked on every frame.
	ProtocolVersion uint16 = 2

	// Connection settings
	MaxMessageSize = 1024 * 1024 // 1MB max message
	WriteTimeout   = 50 * time.Millisecond
	ReadTimeout    = 250 * time.Millisecond
	ReconnectDelay = 500 * time.Millisecond
)

// ErrVersionMismatch is returned for frames from another protocol version.
var ErrVersionMismatch = errors.New("ipc protocol version mismatch")

// ErrMessageTooLarge is returned for bodies over MaxMessageSize.
var ErrMessageTooLarge = errors.New("ipc message too large")

// WorldSnapshot is one authoritative arena state.
type WorldSnapshot struct {
	Sequence  uint64            `msgpack:"seq"`
	Timestamp int64             `msgpack:"ts"` // Unix nano
	Tick      uint64            `msgpack:"tick"`
	Alpha     float64           `msgpack:"alpha"`
	Round     int               `msgpack:"round"`
	Cycles    []game.CycleState `msgpack:"cycles"`
}

// HelloMessage is sent once to every new subscriber so it can build an
// engine with matching physics.
type HelloMessage struct {
	Preset     string  `msgpack:"preset"`
	TickRate   int     `msgpack:"tickRate"`
	HalfExtent float64 `msgpack:"halfExtent"`
	Seed       int64   `msgpack:"seed"`
}

// Header is the message header for framing
type Header struct {
	Version  uint16
	Type     byte
	Reserved byte
	Length   uint32
}

// HeaderSize is 2 (version) + 1 (type) + 1 (reserved) + 4 (length).
const HeaderSize = 8

func (h Header) put(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Version)
	buf[2] = h.Type
	buf[3] = h.Reserved
	binary.LittleEndian.PutUint32(buf[4:8], h.Length)
}

func parseHeader(buf []byte) Header {
	return Header{
		Version:  binary.LittleEndian.Uint16(buf[0:2]),
		Type:     buf[2],
		Reserved: buf[3],
		Length:   binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// Frame buffers are reused between writes.
var framePool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// EncodeFrame returns header and msgpack body as one slice. A nil body
// produces a header-only frame.
func EncodeFrame(msgType byte, body interface{}) ([]byte, error) {
	buf := framePool.Get().(*bytes.Buffer)
	defer framePool.Put(buf)
	buf.Reset()
	buf.Write(make([]byte, HeaderSize))

	if body != nil {
		if err := msgpack.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("msgpack encode: %w", err)
		}
	}

	length := buf.Len() - HeaderSize
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, MaxMessageSize)
	}

	frame := make([]byte, buf.Len())
	copy(frame, buf.Bytes())
	Header{Version: ProtocolVersion, Type: msgType, Length: uint32(length)}.put(frame)
	return frame, nil
}

// WriteMessage writes a framed message in a single Write call.
func WriteMessage(w io.Writer, msgType byte, body interface{}) error {
	frame, err := EncodeFrame(msgType, body)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message.
func ReadMessage(r io.Reader) (byte, []byte, error) {
	var headerBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	header := parseHeader(headerBuf[:])
	if header.Version != ProtocolVersion {
		return 0, nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, header.Version, ProtocolVersion)
	}
	if header.Length > MaxMessageSize {
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, header.Length, MaxMessageSize)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}

	return header.Type, body, nil
}

// DecodeSnapshot decodes a snapshot body.
func DecodeSnapshot(data []byte) (*WorldSnapshot, error) {
	var msg WorldSnapshot
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &msg, nil
}

// DecodeHello decodes a hello body.
func DecodeHello(data []byte) (*HelloMessage, error) {
	var msg HelloMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	return &msg, nil
}

// CleanupSocket removes the socket file if it exists
func CleanupSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}
