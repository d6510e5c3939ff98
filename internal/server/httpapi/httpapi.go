package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ccheshirecat/volterm/internal/server/db"
	"github.com/ccheshirecat/volterm/internal/server/eventbus"
	"github.com/ccheshirecat/volterm/internal/server/shell"
)

const (
	streamBuffer = 256
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

// Shells is the session surface the API drives.
type Shells interface {
	Ensure(ctx context.Context, sessionID string) error
	Submit(ctx context.Context, sessionID, command string) error
	Output(ctx context.Context, sessionID string) (string, error)
	Cwd(ctx context.Context, sessionID string) (string, error)
	Close(sessionID string) error
}

// Files lists a directory's entries.
type Files interface {
	Names(dir string) ([]string, error)
	Invalidate(dir string)
}

// Options carry the API's collaborators. Commands, Files and AI may be nil.
type Options struct {
	Logger     *slog.Logger
	Shells     Shells
	Commands   db.CommandRepository
	Files      Files
	Bus        eventbus.Bus
	AI         http.Handler
	AllowCIDRs []*net.IPNet
}

// New constructs the daemon's HTTP API.
func New(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(opts.Logger))
	r.Use(cors())
	if len(opts.AllowCIDRs) > 0 {
		r.Use(ipFilterMiddleware(opts.Logger, opts.AllowCIDRs))
	}

	api := &apiServer{
		Options:  opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/input", api.submitCommand)
	r.GET("/output", api.pollOutput)
	r.GET("/ws", api.streamOutput)
	r.GET("/status", api.sessionStatus)
	if opts.AI != nil {
		r.POST("/ai", gin.WrapH(opts.AI))
	}

	v1 := r.Group("/api/v1")
	{
		v1.DELETE("/sessions/:id", api.closeSession)
	}

	return r
}

// requestLogger adapts slog to Gin's middleware interface.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		args := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("latency", time.Since(start).String()),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			args = append(args, slog.String("error", c.Errors.String()))
			logger.Error("http request", args...)
			return
		}
		logger.Info("http request", args...)
	}
}

// cors allows any origin, matching a browser front end served elsewhere.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func ipFilterMiddleware(logger *slog.Logger, networks []*net.IPNet) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid client IP"})
			return
		}
		for _, network := range networks {
			if network.Contains(ip) {
				c.Next()
				return
			}
		}
		logger.Warn("request blocked by CIDR filter", "ip", ip.String())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

type apiServer struct {
	Options
	upgrader websocket.Upgrader
}

func sessionID(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("session_id")); id != "" {
		return id
	}
	return shell.DefaultID
}

func (api *apiServer) submitCommand(c *gin.Context) {
	id := sessionID(c)
	command := c.PostForm("cmd")
	if strings.TrimSpace(command) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cmd required"})
		return
	}
	ctx := c.Request.Context()

	if err := api.Shells.Submit(ctx, id, command); err != nil {
		api.Logger.Error("submit command", "session", id, "error", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	if api.Commands != nil {
		if _, err := api.Commands.Record(ctx, id, command); err != nil {
			// The command already ran; only the assistant's context misses it.
			api.Logger.Warn("record command", "session", id, "error", err)
		}
	}
	if api.Files != nil {
		if cwd, err := api.Shells.Cwd(ctx, id); err == nil && cwd != "" {
			api.Files.Invalidate(cwd)
		}
	}
	c.String(http.StatusOK, "OK")
}

func (api *apiServer) pollOutput(c *gin.Context) {
	out, err := api.Shells.Output(c.Request.Context(), sessionID(c))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(out))
}

type statusResponse struct {
	Cwd   string   `json:"cwd,omitempty"`
	Files []string `json:"files,omitempty"`
}

func (api *apiServer) sessionStatus(c *gin.Context) {
	id := sessionID(c)
	cwd, err := api.Shells.Cwd(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	resp := statusResponse{Cwd: cwd}
	if cwd != "" && api.Files != nil {
		files, err := api.Files.Names(cwd)
		if err != nil {
			api.Logger.Warn("list files", "session", id, "dir", cwd, "error", err)
		} else if files != nil {
			resp.Files = files
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (api *apiServer) closeSession(c *gin.Context) {
	id := c.Param("id")
	if err := api.Shells.Close(id); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	if api.Commands != nil {
		if _, err := api.Commands.DeleteSession(c.Request.Context(), id); err != nil {
			api.Logger.Warn("forget session commands", "session", id, "error", err)
		}
	}
	c.Status(http.StatusNoContent)
}

// streamOutput relays a session's output chunks as websocket text frames
// until the client disconnects or the session closes.
func (api *apiServer) streamOutput(c *gin.Context) {
	if api.Bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "output streaming not available"})
		return
	}
	id := sessionID(c)
	if err := api.Shells.Ensure(c.Request.Context(), id); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	events := make(chan any, streamBuffer)
	unsubscribe, err := api.Bus.Subscribe(eventbus.OutputTopic(id), events)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}
	defer unsubscribe()

	conn, err := api.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.Logger.Error("output ws upgrade", "session", id, "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close and pong control messages are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case payload := <-events:
			switch ev := payload.(type) {
			case eventbus.OutputChunk:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(ev.Data)); err != nil {
					return
				}
			case shell.Closed:
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, shell.ErrProtectedSession):
		return http.StatusBadRequest
	case errors.Is(err, shell.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, shell.ErrSessionClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
