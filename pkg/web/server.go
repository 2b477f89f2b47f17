// Package web provides the dashboard and control API for the voice session.
package web

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	requestlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/chat"
	"github.com/teslashibe/go-voicechat/pkg/device"
	"github.com/teslashibe/go-voicechat/pkg/hub"
	"github.com/teslashibe/go-voicechat/pkg/metrics"
	"github.com/teslashibe/go-voicechat/pkg/rtc"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

// LogEntry represents a log line for the dashboard
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Config configures the server.
type Config struct {
	Addr        string
	CORSOrigins []string
	StaticDir   string // served at / when set
	Debug       bool   // request logging
}

// Services are the components the server exposes. Session is required;
// the rest are optional.
type Services struct {
	Session *voice.Session
	Chat    *chat.Conversation
	Metrics *metrics.Metrics
	Devices *device.Hub
	RTC     *rtc.Server
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	svc Services

	// Log buffer (last 500 entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	logHub    *hub.Hub
	cameraHub *hub.Hub
}

// NewServer creates the server and its hubs. Routes are added by Mount.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	logger = log.Component(log.Or(logger), "web")
	s := &Server{
		addr:      cfg.Addr,
		logger:    logger,
		logs:      make([]LogEntry, 0, 500),
		statusHub: hub.New("status", logger),
		logHub:    hub.New("logs", logger),
		cameraHub: hub.New("camera", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicechat",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	origins := "*"
	if len(cfg.CORSOrigins) > 0 {
		origins = strings.Join(cfg.CORSOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if cfg.Debug {
		app.Use(requestlog.New())
	}
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// Mount registers every route for svc and subscribes to session state.
func (s *Server) Mount(svc Services) {
	s.svc = svc
	app := s.app

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if svc.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(svc.Metrics.Handler()))
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/session/connect", s.handleConnect)
	api.Post("/session/close", s.handleClose)
	api.Put("/session/mode", s.handleMode)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleSetCamera)
	api.Get("/metrics/turn", s.handleTurnMetrics)
	api.Get("/logs", s.handleGetLogs)
	api.Post("/chat", s.handleChat)
	api.Get("/conversation", s.handleGetConversation)
	api.Delete("/conversation", s.handleClearConversation)

	if svc.Devices != nil {
		svc.Devices.RegisterRoutes(app)
		svc.Devices.RegisterAPIRoutes(api)
	}
	if svc.RTC != nil {
		svc.RTC.RegisterRoutes(api)
	}

	// WebSocket upgrade middleware
	dash := app.Group("/ws")
	dash.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	dash.Get("/logs", websocket.New(s.handleLogsWS))
	dash.Get("/camera", websocket.New(s.handleCameraWS))
	dash.Get("/status", websocket.New(s.handleStatusWS))

	svc.Session.OnStateChange(func(st voice.State) {
		s.statusHub.BroadcastJSON(st)
	})
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start runs the hubs and serves until the listener fails or Shutdown is
// called. The hubs stop when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// AddLog adds a log entry and broadcasts to clients
func (s *Server) AddLog(level, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Level:   level,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > 500 {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// SendCameraFrame forwards a frame sent to the model to dashboard viewers.
func (s *Server) SendCameraFrame(jpegData []byte) {
	s.cameraHub.BroadcastBinary(jpegData)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
