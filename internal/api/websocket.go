package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-core/internal/schedule"
)

// Event channels a WebSocket subscriber can follow.
const (
	ChannelScheduleFired      = "schedule.fired"
	ChannelDeviceStateChanged = "device.state_changed"
)

var knownChannels = map[string]bool{
	ChannelScheduleFired:      true,
	ChannelDeviceStateChanged: true,
}

// Frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

// subscriberBuffer is the number of frames queued per subscriber before
// events are dropped for it.
const subscriberBuffer = 256

// Frame is the JSON envelope of every WebSocket message in both directions.
// Clients send subscribe and unsubscribe frames with an ID and channels.
// The server answers with ack or error frames carrying the same ID and
// pushes event frames for the subscribed channels.
type Frame struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Time     string   `json:"time,omitempty"`
	Message  string   `json:"message,omitempty"`
	Payload  any      `json:"payload,omitempty"`
}

// Broadcaster pushes scheduler fires and device state changes to WebSocket
// subscribers. It is a schedule.Reporter and a device.StateObserver.
type Broadcaster struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	// mu guards subscribers. A subscriber's send channel is only written
	// or closed while mu is held.
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	channels map[string]struct{}
}

// upgrader accepts any origin. Origins are checked by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster(cfg config.WebSocketConfig, logger *logging.Logger) *Broadcaster {
	return &Broadcaster{cfg: cfg, logger: logger, subscribers: make(map[*subscriber]struct{})}
}

// Run blocks until ctx is cancelled and then disconnects every subscriber.
func (b *Broadcaster) Run(ctx context.Context) {
	<-ctx.Done()

	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subscribers {
		close(s.send)
		if s.conn != nil {
			s.conn.Close()
		}
		delete(b.subscribers, s)
	}
}

// SubscriberCount returns the number of connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Report publishes a fire event on ChannelScheduleFired.
func (b *Broadcaster) Report(ev schedule.Event) {
	b.publish(ChannelScheduleFired, firePayload{Event: ev, Error: ev.ErrorText()})
}

// DeviceStateChanged publishes the device on ChannelDeviceStateChanged.
func (b *Broadcaster) DeviceStateChanged(d device.Device) {
	b.publish(ChannelDeviceStateChanged, d)
}

// firePayload adds the error text, which schedule.Event does not marshal.
type firePayload struct {
	schedule.Event
	Error string `json:"error,omitempty"`
}

func (b *Broadcaster) publish(channel string, payload any) {
	data, err := json.Marshal(Frame{
		Type:    FrameEvent,
		Channel: channel,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload: payload,
	})
	if err != nil {
		b.logger.Error("failed to marshal event", "channel", channel, "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	sent, dropped := 0, 0
	for s := range b.subscribers {
		if !s.follows(channel) {
			continue
		}
		if s.offer(data) {
			sent++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.Warn("event dropped for slow subscribers", "channel", channel, "dropped", dropped)
	}
	if sent > 0 {
		b.logger.Debug("event published", "channel", channel, "subscribers", sent)
	}
}

func (b *Broadcaster) add(s *subscriber) {
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	b.logger.Debug("websocket subscriber connected", "subscribers", n)
}

// remove drops s and closes its send channel. Removing twice is a no-op.
func (b *Broadcaster) remove(s *subscriber) {
	b.mu.Lock()
	_, ok := b.subscribers[s]
	if ok {
		delete(b.subscribers, s)
		close(s.send)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	if ok {
		b.logger.Debug("websocket subscriber disconnected", "subscribers", n)
	}
}

// reply queues a frame for one subscriber if it is still connected.
func (b *Broadcaster) reply(s *subscriber, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.subscribers[s]; ok {
		s.offer(data)
	}
}

// offer queues data without blocking. Callers hold the broadcaster lock.
func (s *subscriber) offer(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) follows(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}

func (s *subscriber) update(channels []string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		if on {
			s.channels[ch] = struct{}{}
		} else {
			delete(s.channels, ch)
		}
	}
}

// checkChannels rejects empty lists and unknown channel names.
func checkChannels(channels []string) error {
	if len(channels) == 0 {
		return errors.New("no channels given")
	}
	for _, ch := range channels {
		if !knownChannels[ch] {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	return nil
}

// handleWebSocket upgrades the connection. An optional ?channels=a,b query
// subscribes the connection before the first frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial []string
	if q := r.URL.Query().Get("channels"); q != "" {
		initial = strings.Split(q, ",")
		if err := checkChannels(initial); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		conn:     conn,
		send:     make(chan []byte, subscriberBuffer),
		channels: make(map[string]struct{}),
	}
	sub.update(initial, true)
	s.broadcaster.add(sub)

	go s.broadcaster.writeLoop(sub)
	go s.broadcaster.readLoop(sub)
}

// readLoop applies subscribe and unsubscribe frames until the connection
// fails or goes quiet past the pong timeout.
func (b *Broadcaster) readLoop(s *subscriber) {
	defer func() {
		b.remove(s)
		s.conn.Close()
	}()

	wait := time.Duration(b.cfg.PingInterval+b.cfg.PongTimeout) * time.Second
	s.conn.SetReadLimit(int64(b.cfg.MaxMessageSize))
	s.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // Read error follows
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // Read error follows

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			b.reply(s, Frame{Type: FrameError, Message: "invalid JSON frame"})
			continue
		}
		b.reply(s, b.apply(s, f))
	}
}

func (b *Broadcaster) apply(s *subscriber, f Frame) Frame {
	if f.Type != FrameSubscribe && f.Type != FrameUnsubscribe {
		return Frame{Type: FrameError, ID: f.ID, Message: "unknown frame type " + f.Type}
	}
	if err := checkChannels(f.Channels); err != nil {
		return Frame{Type: FrameError, ID: f.ID, Message: err.Error()}
	}
	s.update(f.Channels, f.Type == FrameSubscribe)
	b.logger.Debug("websocket subscription changed", "type", f.Type, "channels", f.Channels)
	return Frame{Type: FrameAck, ID: f.ID, Channels: f.Channels}
}

// writeLoop drains the send channel and pings on the configured interval.
func (b *Broadcaster) writeLoop(s *subscriber) {
	ticker := time.NewTicker(time.Duration(b.cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	timeout := time.Duration(b.cfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(timeout)) //nolint:errcheck // Write error follows
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(timeout)) //nolint:errcheck // Write error follows
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
