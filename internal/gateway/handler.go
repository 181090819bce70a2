// Package gateway serves the voice WebSocket endpoint: it accepts a client,
// applies its optional config message, streams its audio into speech
// recognition, and runs the response pipeline for every finalized utterance.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chriscow/voicegw/internal/config"
	"github.com/chriscow/voicegw/pkg/agent"
	"github.com/chriscow/voicegw/pkg/ai/stt"
	"github.com/chriscow/voicegw/pkg/bridge"
	"github.com/chriscow/voicegw/pkg/job"
	"github.com/chriscow/voicegw/pkg/metrics"
	"github.com/chriscow/voicegw/pkg/plugin"
	"github.com/chriscow/voicegw/pkg/protocol"
	"github.com/chriscow/voicegw/pkg/session"
)

// Connection close statuses recorded in metrics.
const (
	statusNormal   = "normal"
	statusError    = "error"
	statusShutdown = "shutdown"
)

// Handler upgrades requests to WebSocket connections and serves them.
type Handler struct {
	cfg      *config.Config
	registry *plugin.Registry
	defaults session.Credentials
	metrics  *metrics.Metrics
	root     *slog.Logger
	logger   *slog.Logger
	baseCtx  context.Context

	upgrader websocket.Upgrader
	mu       sync.Mutex
	closing  bool
	wg       sync.WaitGroup
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithRegistry selects the plugin registry providers are built from.
func WithRegistry(r *plugin.Registry) HandlerOption {
	return func(h *Handler) { h.registry = r }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithBaseContext sets the context every connection derives from.
// Cancelling it closes all connections.
func WithBaseContext(ctx context.Context) HandlerOption {
	return func(h *Handler) { h.baseCtx = ctx }
}

// NewHandler creates the WebSocket handler.
func NewHandler(cfg *config.Config, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cfg:      cfg,
		registry: plugin.Default(),
		defaults: cfg.DefaultCredentials(),
		root:     logger,
		logger:   logger.With(slog.String("component", "gateway")),
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

func (h *Handler) originAllowed(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	return origin == "" || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// Wait stops accepting connections and blocks until every connection
// served so far has been torn down.
func (h *Handler) Wait() {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.wg.Wait()
}

// track counts a new connection unless the handler is shutting down.
func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing || h.baseCtx.Err() != nil {
		return false
	}
	h.wg.Add(1)
	return true
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Upgrade failed", slog.String("error", err.Error()))
		return
	}
	h.serve(ws, r.RemoteAddr)
}

// serve runs one connection from first message to teardown.
func (h *Handler) serve(ws *websocket.Conn, remote string) {
	h.metrics.ConnectionOpened()
	status := statusNormal
	defer func() { h.metrics.ConnectionClosed(status) }()

	j := job.New(h.baseCtx, job.Config{Remote: remote, Logger: h.logger})
	logger := j.Logger()
	ws.SetReadLimit(h.cfg.MaxMessageBytes)

	// A shut down job unblocks the reader.
	go func() {
		<-j.Context.Done()
		_ = ws.SetReadDeadline(time.Now())
	}()

	sess := session.New(h.defaults, session.WithBackends(h.cfg.Selection()))
	logger = logger.With(slog.String("session", sess.ID))
	// Pipeline components tag their own component name.
	base := h.root.With(slog.String("job_id", j.ID))

	mt, first, err := ws.ReadMessage()
	if err != nil {
		logger.Debug("Connection closed before first message", slog.String("error", err.Error()))
		j.Shutdown("closed before first message")
		sess.Advance(session.Closed)
		ws.Close()
		return
	}

	var pcfg protocol.Config
	var pending []byte
	switch mt {
	case websocket.TextMessage:
		if pcfg, err = protocol.DecodeConfig(first); err != nil {
			logger.Debug("First message is not a config, using defaults", slog.String("error", err.Error()))
		}
	case websocket.BinaryMessage:
		pending = first
	}

	unknown, err := sess.Configure(pcfg)
	if err != nil {
		logger.Error("Session configuration failed", slog.String("error", err.Error()))
	}
	logger.Info("Session configured",
		slog.String("remote", remote),
		slog.String("persona", sess.Persona().ID),
		slog.Any("keys", pcfg.KeyNames()),
		slog.Any("credentials", sess.Credentials().Present()))
	if len(unknown) > 0 {
		logger.Warn("Ignoring unknown credential keys", slog.Any("keys", unknown))
	}

	build := h.cfg.BuildConfig(sess.Credentials())
	build.Registry = h.registry
	build.Logger = logger
	providers := agent.BuildProviders(build)

	c := newConn(ws, h.cfg.WriteTimeout, logger)
	go c.writeLoop()

	pipelineCtx, cancelPipeline := context.WithCancel(j.Context.Ctx)
	j.Context.OnShutdown(func(string) { cancelPipeline() })

	b := bridge.New(h.cfg.QueueSize, base.With(slog.String("session", sess.ID))).WithMetrics(h.metrics)
	j.Context.OnShutdown(func(string) { b.Close() })

	stream := h.openSTT(pipelineCtx, providers, c, logger)
	var pumpDone chan struct{}
	if stream != nil {
		j.Context.OnShutdown(func(string) {
			if err := stream.Close(); err != nil {
				logger.Warn("Closing speech recognition stream", slog.String("error", err.Error()))
			}
		})
		pumpDone = make(chan struct{})
		go pump(stream, b, logger, pumpDone)
	}

	orch, err := agent.New(agent.Config{
		Providers: providers,
		Emitter:   c,
		Timeouts:  h.cfg.Timeouts.Agent(),
		Logger:    base,
		Metrics:   h.metrics,
	})
	if err != nil {
		logger.Error("Creating orchestrator", slog.String("error", err.Error()))
		j.Shutdown("orchestrator")
		status = statusError
		ws.Close()
		return
	}

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		b.Run(pipelineCtx, func(ctx context.Context, u bridge.Utterance) {
			orch.Handle(ctx, sess, u)
		})
	}()

	if pending != nil {
		h.forward(stream, pending, logger)
	}
	reason := h.readLoop(ws, stream, logger)

	// Teardown.
	switch {
	case h.baseCtx.Err() != nil:
		status = statusShutdown
	case c.failed():
		status = statusError
	case reason != nil && !websocket.IsCloseError(reason, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		status = statusError
	}
	sess.Advance(session.Closing)
	j.Shutdown(status)
	<-pipelineDone
	if pumpDone != nil {
		<-pumpDone
	}
	c.close()
	sess.Advance(session.Closed)

	logger.Info("Connection closed",
		slog.String("status", status),
		slog.Int("turns", len(sess.History())))
}

// openSTT starts speech recognition. When that is impossible the client is
// told once and audio is discarded for the rest of the connection.
func (h *Handler) openSTT(ctx context.Context, providers agent.Providers, c *conn, logger *slog.Logger) stt.STTStream {
	var err error
	if providers.STT == nil {
		err = providers.Unavailable(session.SpeechToText)
	} else {
		var stream stt.STTStream
		if stream, err = providers.STT.NewStream(ctx, stt.DefaultStreamConfig); err == nil {
			return stream
		}
	}

	logger.Error("Speech recognition unavailable", slog.String("error", err.Error()))
	if err := c.Emit(ctx, protocol.LLMError(agent.ApologySpeechDisabled)); err != nil {
		logger.Debug("Could not report speech recognition failure", slog.String("error", err.Error()))
	}
	return nil
}

// readLoop forwards binary frames until the connection ends and returns the
// read error that ended it.
func (h *Handler) readLoop(ws *websocket.Conn, stream stt.STTStream, logger *slog.Logger) error {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			logger.Debug("Read loop finished", slog.String("error", err.Error()))
			return err
		}
		switch mt {
		case websocket.BinaryMessage:
			h.forward(stream, data, logger)
		case websocket.TextMessage:
			logger.Debug("Ignoring text message after configuration", slog.Int("bytes", len(data)))
		}
	}
}

func (h *Handler) forward(stream stt.STTStream, audio []byte, logger *slog.Logger) {
	if stream == nil {
		h.metrics.AudioBytes("discarded", len(audio))
		return
	}
	h.metrics.AudioBytes("in", len(audio))
	if err := stream.Push(audio); err != nil {
		logger.Debug("Dropping audio", slog.String("error", err.Error()))
	}
}

// pump moves finalized transcripts from the recognition stream into the
// bridge until the stream closes.
func pump(stream stt.STTStream, b *bridge.Bridge, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	for ev := range stream.Events() {
		switch ev.Type {
		case stt.SpeechEventFinal:
			logger.Debug("Utterance finalized", slog.String("text", ev.Text))
			b.Notify(ev.Text)
		case stt.SpeechEventInterim:
			logger.Debug("Interim transcript", slog.Int("chars", len(ev.Text)))
		case stt.SpeechEventError:
			level := slog.LevelWarn
			if errors.Is(ev.Error, stt.ErrFatal) {
				level = slog.LevelError
			}
			logger.Log(context.Background(), level, "Speech recognition error", slog.Any("error", ev.Error))
		}
	}
}
