package webmonitor

import (
	"encoding/base64"
	"sync"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/logger"
)

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// serialize renders payload as JSON and as a protobuf Struct with the same fields.
func serialize(payload any) (jsonData, pbData []byte, err error) {
	jsonData, err = json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	pbData, err = toProtobuf(jsonData)
	if err != nil {
		return nil, nil, err
	}
	return jsonData, pbData, nil
}

// toProtobuf converts a JSON object into a serialized google.protobuf.Struct.
func toProtobuf(jsonData []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(st)
}

// StatusBroadcaster manages fanout of sampling status events to SSE clients.
type StatusBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
	buffer  int
	dropped uint64
	closed  bool
}

// NewStatusBroadcaster creates a broadcaster with the given per-client queue size.
func NewStatusBroadcaster(buffer int) *StatusBroadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &StatusBroadcaster{
		clients: make(map[int]chan *SerializedEvent),
		buffer:  buffer,
	}
}

// Subscribe adds a new client and returns a channel for receiving status events.
// The channel is closed on Unsubscribe or Close.
func (sb *StatusBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	id := sb.nextID
	sb.nextID++
	ch := make(chan *SerializedEvent, sb.buffer)
	if sb.closed {
		close(ch)
		return id, ch
	}
	sb.clients[id] = ch

	logger.Debug("StatusBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(sb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (sb *StatusBroadcaster) Unsubscribe(id int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if ch, ok := sb.clients[id]; ok {
		close(ch)
		delete(sb.clients, id)
		logger.Debug("StatusBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(sb.clients))
	}
}

// ClientCount returns the number of subscribers.
func (sb *StatusBroadcaster) ClientCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.clients)
}

// Dropped is the number of per-client deliveries skipped because a client was slow.
func (sb *StatusBroadcaster) Dropped() uint64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.dropped
}

// Publish serializes payload once and fans it out without blocking.
// Nothing is serialized while no client is subscribed.
func (sb *StatusBroadcaster) Publish(payload any) {
	if sb.ClientCount() == 0 {
		return
	}

	jsonData, pbData, err := serialize(payload)
	if err != nil {
		logger.Error("StatusBroadcaster", "Marshal error: %v", err)
		return
	}
	sb.broadcast(&SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	})
}

func (sb *StatusBroadcaster) broadcast(event *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, ch := range sb.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event for this client
			sb.dropped++
		}
	}
}

// Close disconnects every client.
func (sb *StatusBroadcaster) Close() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.closed {
		return
	}
	sb.closed = true
	for id, ch := range sb.clients {
		close(ch)
		delete(sb.clients, id)
	}
}
