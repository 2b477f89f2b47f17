// Package device lets a remote client lend its microphone, camera and
// speaker to the server-side session over a WebSocket.
package device

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
	"github.com/teslashibe/go-voicechat/pkg/protocol"
)

// ErrNoDevice is returned when media is requested and no device is
// connected.
var ErrNoDevice = errors.New("device: no device connected")

// sender is the write side of a device connection.
type sender interface {
	WriteMessage(messageType int, data []byte) error
}

// Device is one connected remote client.
type Device struct {
	ID        string
	Connected time.Time

	conn    sender
	writeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
	hello    protocol.HelloData
	mic      *audioio.PushSource

	frames *camera.FrameStore
}

func newDevice(id string, conn sender) *Device {
	now := time.Now()
	return &Device{
		ID:        id,
		Connected: now,
		conn:      conn,
		lastSeen:  now,
		frames:    camera.NewFrameStore(),
	}
}

// Send sends a message to the device
func (d *Device) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

// Hello returns the capabilities the device announced.
func (d *Device) Hello() protocol.HelloData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hello
}

// LastSeen returns when the device last sent anything.
func (d *Device) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

// Frames returns the store holding the device's latest camera frame.
func (d *Device) Frames() *camera.FrameStore {
	return d.frames
}

// attachMic routes incoming microphone audio to src.
func (d *Device) attachMic(src *audioio.PushSource) {
	d.mu.Lock()
	d.mic = src
	d.mu.Unlock()
}

func (d *Device) pushMic(mic *protocol.AudioData) error {
	pcm, err := mic.Bytes()
	if err != nil {
		return err
	}
	d.mu.Lock()
	src := d.mic
	d.mu.Unlock()
	if src == nil {
		return nil
	}
	src.Push(audioio.Frame{
		Samples:    audioio.DecodePCM16(audioio.BytesToSamples(pcm)),
		SampleRate: mic.SampleRate,
		Channels:   max(mic.Channels, 1),
	})
	return nil
}

// Hub manages WebSocket connections from devices. The most recently
// connected device is the active one and supplies session media.
type Hub struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string // connect order, newest last
	logger  *slog.Logger

	// Callbacks
	onConnect    func(d *Device)
	onDisconnect func(id string)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
}

// NewHub creates a new device hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		devices: make(map[string]*Device),
		logger:  log.Component(log.Or(logger), "device"),
	}
}

// OnConnect sets the callback for new devices.
func (h *Hub) OnConnect(fn func(d *Device)) {
	h.mu.Lock()
	h.onConnect = fn
	h.mu.Unlock()
}

// OnDisconnect sets the callback for departed devices.
func (h *Hub) OnDisconnect(fn func(id string)) {
	h.mu.Lock()
	h.onDisconnect = fn
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber router
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(h.handleDevice))
	app.Get("/ws/device/:id", websocket.New(h.handleDevice))
}

// handleDevice handles a device WebSocket connection
func (h *Hub) handleDevice(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}
	d := newDevice(id, c)
	h.add(d)
	defer h.remove(d)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("device read ended", "device", id, "error", err)
			return
		}
		h.messagesReceived.Add(1)
		h.handleMessage(d, data)
	}
}

func (h *Hub) add(d *Device) {
	h.mu.Lock()
	if old, ok := h.devices[d.ID]; ok {
		h.logger.Warn("device reconnected, replacing", "device", old.ID)
		h.dropOrder(d.ID)
	}
	h.devices[d.ID] = d
	h.order = append(h.order, d.ID)
	count := len(h.devices)
	cb := h.onConnect
	h.mu.Unlock()

	h.logger.Info("device connected", "device", d.ID, "devices", count)
	if cb != nil {
		cb(d)
	}
}

func (h *Hub) remove(d *Device) {
	h.mu.Lock()
	// A reconnect under the same ID may already have replaced d.
	if h.devices[d.ID] != d {
		h.mu.Unlock()
		return
	}
	delete(h.devices, d.ID)
	h.dropOrder(d.ID)
	count := len(h.devices)
	cb := h.onDisconnect
	h.mu.Unlock()

	d.frames.Close()
	h.logger.Info("device disconnected", "device", d.ID, "devices", count)
	if cb != nil {
		cb(d.ID)
	}
}

// dropOrder removes id from the connect order. Caller holds h.mu.
func (h *Hub) dropOrder(id string) {
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			return
		}
	}
}

// handleMessage processes an incoming message from a device
func (h *Hub) handleMessage(d *Device, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Debug("parse error", "device", d.ID, "error", err)
		return
	}

	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()

	switch msg.Type {
	case protocol.TypeHello:
		hello, err := protocol.Decode[protocol.HelloData](msg)
		if err != nil {
			return
		}
		d.mu.Lock()
		d.hello = *hello
		d.mu.Unlock()
		h.logger.Info("device hello", "device", d.ID, "name", hello.Name,
			"microphone", hello.Microphone, "camera", hello.Camera, "speaker", hello.Speaker)

	case protocol.TypeMic:
		mic, err := protocol.Decode[protocol.AudioData](msg)
		if err != nil {
			return
		}
		if err := d.pushMic(mic); err != nil {
			h.logger.Debug("bad mic data", "device", d.ID, "error", err)
		}

	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		frame, err := protocol.Decode[protocol.FrameData](msg)
		if err != nil {
			return
		}
		jpeg, err := frame.Bytes()
		if err != nil {
			h.logger.Debug("bad frame data", "device", d.ID, "error", err)
			return
		}
		d.frames.Update(jpeg)

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage("", msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			h.send(d, pong)
		}
	}
}

func (h *Hub) send(d *Device, msg *protocol.Message) error {
	h.messagesSent.Add(1)
	return d.Send(msg)
}

// Broadcast sends a message to all connected devices
func (h *Hub) Broadcast(msg *protocol.Message) {
	for _, d := range h.GetDevices() {
		if err := h.send(d, msg); err != nil {
			h.logger.Debug("broadcast error", "device", d.ID, "error", err)
		}
	}
}

// GetDevice returns a device by ID
func (h *Hub) GetDevice(id string) *Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[id]
}

// Active returns the most recently connected device, or nil.
func (h *Hub) Active() *Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.order) == 0 {
		return nil
	}
	return h.devices[h.order[len(h.order)-1]]
}

// GetDevices returns all connected devices
func (h *Hub) GetDevices() []*Device {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devices := make([]*Device, 0, len(h.devices))
	for _, id := range h.order {
		devices = append(devices, h.devices[id])
	}
	return devices
}

// DeviceCount returns the number of connected devices
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// Stats contains hub statistics
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		DeviceCount:      h.DeviceCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
	}
}

// Info describes a connected device
type Info struct {
	ID        string             `json:"id"`
	Active    bool               `json:"active"`
	Connected time.Time          `json:"connected"`
	LastSeen  time.Time          `json:"last_seen"`
	Hello     protocol.HelloData `json:"hello"`
}

// GetInfos returns info about all connected devices
func (h *Hub) GetInfos() []Info {
	active := h.Active()
	devices := h.GetDevices()
	infos := make([]Info, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, Info{
			ID:        d.ID,
			Active:    d == active,
			Connected: d.Connected,
			LastSeen:  d.LastSeen(),
			Hello:     d.Hello(),
		})
	}
	return infos
}

// RegisterAPIRoutes registers API routes for device management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.GetInfos(),
			"count":   h.DeviceCount(),
		})
	})

	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
