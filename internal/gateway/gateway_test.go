package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chriscow/voicegw/internal/config"
	"github.com/chriscow/voicegw/pkg/agent"
	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/ai/augment"
	augmentfake "github.com/chriscow/voicegw/pkg/ai/augment/fake"
	llmfake "github.com/chriscow/voicegw/pkg/ai/llm/fake"
	sttfake "github.com/chriscow/voicegw/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/voicegw/pkg/ai/tts/fake"
	"github.com/chriscow/voicegw/pkg/metrics"
	"github.com/chriscow/voicegw/pkg/persona"
	"github.com/chriscow/voicegw/pkg/plugin"
	"github.com/chriscow/voicegw/pkg/protocol"
	"github.com/chriscow/voicegw/pkg/session"
)

const waitFor = 5 * time.Second

// frame is one chunk of client audio; the fake recognizer finalizes a
// transcript per frame in these tests.
var frame = make([]byte, 640)

type harness struct {
	t       *testing.T
	cfg     *config.Config
	stt     *sttfake.FakeSTT
	llm     *llmfake.FakeLLM
	tts     *ttsfake.FakeTTS
	metrics *metrics.Metrics
	srv     *httptest.Server
	cancel  context.CancelFunc
	logger  *slog.Logger

	sttErr  error
	newsErr error

	mu   sync.Mutex
	keys map[string]string // plugin kind -> API key seen by the factory
}

func newHarness(t *testing.T, transcripts ...string) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		cfg:  config.Default(),
		stt:  sttfake.NewFakeSTT(transcripts...),
		llm:  llmfake.NewFakeLLM("Here you go. Anything else?"),
		tts:  ttsfake.NewFakeTTS(),
		keys: make(map[string]string),
	}
	h.stt.FramesPerUtterance = 1
	h.cfg.Providers = agent.Backends{STT: "fake", LLM: "fake", TTS: "fake", Search: "fake", News: "fake"}
	h.cfg.Credentials = map[string]string{}
	h.cfg.WriteTimeout = 2 * time.Second
	return h
}

func (h *harness) registry() *plugin.Registry {
	reg := plugin.NewRegistry()
	record := func(kind string, cfg plugin.Config) {
		h.mu.Lock()
		h.keys[kind] = cfg.APIKey
		h.mu.Unlock()
	}
	reg.Register(plugin.KindSTT, "fake", func(cfg plugin.Config) (any, error) {
		record(plugin.KindSTT, cfg)
		if h.sttErr != nil {
			return nil, h.sttErr
		}
		return h.stt, nil
	})
	reg.Register(plugin.KindLLM, "fake", func(cfg plugin.Config) (any, error) {
		record(plugin.KindLLM, cfg)
		return h.llm, nil
	})
	reg.Register(plugin.KindTTS, "fake", func(cfg plugin.Config) (any, error) {
		record(plugin.KindTTS, cfg)
		return h.tts, nil
	})
	reg.Register(plugin.KindSearch, "fake", func(cfg plugin.Config) (any, error) {
		record(plugin.KindSearch, cfg)
		return augmentfake.NewFakeProvider("Gophers are fast."), nil
	})
	reg.Register(plugin.KindNews, "fake", func(cfg plugin.Config) (any, error) {
		record(plugin.KindNews, cfg)
		if h.newsErr != nil {
			return augment.Func(func(context.Context, string) (string, error) {
				return "", h.newsErr
			}), nil
		}
		return augmentfake.NewFakeProvider("Here are some headlines:\n1. Gophers win"), nil
	})
	return reg
}

func (h *harness) start() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.metrics = metrics.New("test")
	s := NewServer(ctx, h.cfg, h.metrics, h.logger, WithRegistry(h.registry()))
	h.srv = httptest.NewServer(s.Routes())
	h.t.Cleanup(func() {
		cancel()
		h.srv.Close()
	})
}

func (h *harness) key(kind string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.keys[kind]
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
}

func (h *harness) dial() *websocket.Conn {
	h.t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	if err != nil {
		h.t.Fatalf("dial: %v", err)
	}
	h.t.Cleanup(func() { ws.Close() })
	return ws
}

func sendConfig(t *testing.T, ws *websocket.Conn, keys map[string]string, personaID string) {
	t.Helper()
	msg := map[string]any{"type": "config", "keys": keys}
	if personaID != "" {
		msg["persona"] = personaID
	}
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func sendAudio(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write audio: %v", err)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) protocol.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	var ev protocol.Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestGreetingQuickReply(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{}, "")
	sendAudio(t, ws)

	greeting, _ := persona.Lookup(persona.DefaultID).QuickReply("hello")

	ev := readEvent(t, ws)
	is.Equal(ev, protocol.Final("hello"))
	ev = readEvent(t, ws)
	is.Equal(ev, protocol.Assistant(greeting))
	ev = readEvent(t, ws)
	is.Equal(ev.Type, protocol.TypeAudio)
	clip, err := ev.AudioBytes()
	is.NoErr(err)
	is.Equal(string(clip[:4]), "RIFF")

	is.Equal(len(h.llm.Requests()), 0) // quick replies skip generation
}

func TestNewsFailureApologizes(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "what's the latest news")
	h.newsErr = ai.NewRecoverableError(errors.New("upstream 503"), "newsapi")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{"newsapi": "k"}, "")
	sendAudio(t, ws)

	is.Equal(readEvent(t, ws), protocol.Final("what's the latest news"))
	is.Equal(readEvent(t, ws), protocol.LLMError(agent.ApologyNews))

	eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.UtterancesTotal.WithLabelValues("news", metrics.OutcomeFailed)) == 1
	})
	is.Equal(len(h.tts.Requests()), 0)
}

func TestBinaryFirstFrameIsAudio(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hi")
	h.start()

	ws := h.dial()
	sendAudio(t, ws)

	is.Equal(readEvent(t, ws), protocol.Final("hi"))
	streams := h.stt.Streams()
	is.Equal(len(streams), 1)
	is.Equal(streams[0].BytesReceived(), len(frame))
}

func TestMalformedConfigFallsBackToDefaults(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.cfg.Credentials = map[string]string{"news": "server-news"}
	h.start()

	ws := h.dial()
	is.NoErr(ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	sendAudio(t, ws)

	is.Equal(readEvent(t, ws), protocol.Final("hello"))
	greeting, _ := persona.Lookup(persona.DefaultID).QuickReply("hello")
	is.Equal(readEvent(t, ws), protocol.Assistant(greeting))
	is.Equal(h.key(plugin.KindNews), "server-news")
}

func TestPersonaSelection(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, nil, "pirate")
	sendAudio(t, ws)

	is.Equal(readEvent(t, ws), protocol.Final("hello"))
	want, _ := persona.Lookup("pirate").QuickReply("hello")
	is.Equal(readEvent(t, ws), protocol.Assistant(want))
}

func TestLaterConfigIgnored(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, nil, "pirate")
	is.NoErr(ws.WriteJSON(map[string]any{"type": "config", "persona": "butler"}))
	sendAudio(t, ws)

	is.Equal(readEvent(t, ws), protocol.Final("hello"))
	want, _ := persona.Lookup("pirate").QuickReply("hello")
	is.Equal(readEvent(t, ws), protocol.Assistant(want))
}

func TestClientKeyForSelectedBackend(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{"openai": "O", "gemini": "G"}, "")
	sendAudio(t, ws)
	readEvent(t, ws)

	is.Equal(h.key(plugin.KindLLM), "G") // first alias in name order
}

func TestClientKeysOverrideDefaults(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.cfg.Credentials = map[string]string{
		string(session.News):      "server-news",
		string(session.WebSearch): "server-search",
	}
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{"newsapi": "client-news", "bogus": "x"}, "")
	sendAudio(t, ws)
	readEvent(t, ws)

	is.Equal(h.key(plugin.KindNews), "client-news")
	is.Equal(h.key(plugin.KindSearch), "server-search")
}

func TestSpeechUnavailableKeepsConnectionOpen(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.sttErr = ai.ErrMissingCredential
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{}, "")

	is.Equal(readEvent(t, ws), protocol.LLMError(agent.ApologySpeechDisabled))

	sendAudio(t, ws)
	sendAudio(t, ws)
	eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.AudioBytesTotal.WithLabelValues("discarded")) == float64(2*len(frame))
	})
	is.Equal(testutil.ToFloat64(h.metrics.ConnectionsActive), 1.0)
}

func TestDisconnectReleasesRecognizer(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{}, "")
	sendAudio(t, ws)
	is.Equal(readEvent(t, ws), protocol.Final("hello"))

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	is.NoErr(ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	streams := h.stt.Streams()
	is.Equal(len(streams), 1)
	eventually(t, func() bool { return streams[0].Closed() })
	eventually(t, func() bool { return testutil.ToFloat64(h.metrics.ConnectionsActive) == 0 })
	is.Equal(testutil.ToFloat64(h.metrics.ConnectionsTotal.WithLabelValues(statusNormal)), 1.0)
}

func TestUtterancesAnsweredInOrder(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello", "hi")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{}, "")
	sendAudio(t, ws)
	sendAudio(t, ws)

	var events []protocol.Event
	assistants := 0
	for assistants < 2 {
		ev := readEvent(t, ws)
		events = append(events, ev)
		if ev.Type == protocol.TypeAssistant {
			assistants++
		}
	}

	var finals []string
	firstAssistant, secondFinal := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case protocol.TypeFinal:
			finals = append(finals, ev.Text)
			if len(finals) == 2 {
				secondFinal = i
			}
		case protocol.TypeAssistant:
			if firstAssistant < 0 {
				firstAssistant = i
			}
		}
	}
	is.Equal(finals, []string{"hello", "hi"})
	is.True(firstAssistant < secondFinal) // second utterance waits for the first
}

func TestGeneralQueryUsesLanguageModel(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "tell me about gophers")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{"gemini": "g-key"}, "")
	sendAudio(t, ws)

	is.Equal(readEvent(t, ws), protocol.Final("tell me about gophers"))
	is.Equal(readEvent(t, ws), protocol.Assistant("Here you go. Anything else?"))
	for range 2 {
		is.Equal(readEvent(t, ws).Type, protocol.TypeAudio)
	}
	is.Equal(h.key(plugin.KindLLM), "g-key")
	is.Equal(len(h.llm.Requests()), 1)
}

func TestRejectsOtherMethods(t *testing.T) {
	is := is.New(t)
	h := newHarness(t)
	h.start()

	resp, err := http.Post(h.srv.URL+"/ws", "application/json", strings.NewReader("{}"))
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusMethodNotAllowed)
}

func TestOriginCheck(t *testing.T) {
	is := is.New(t)
	h := newHarness(t)
	h.cfg.AllowedOrigins = []string{"https://app.example"}
	h.start()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), header)
	is.True(err != nil)
	is.Equal(resp.StatusCode, http.StatusForbidden)

	header.Set("Origin", "https://app.example")
	ws, _, err := websocket.DefaultDialer.Dial(h.wsURL(), header)
	is.NoErr(err)
	ws.Close()
}

func TestHealthz(t *testing.T) {
	is := is.New(t)
	h := newHarness(t)
	h.start()

	resp, err := http.Get(h.srv.URL + "/healthz")
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)

	var body map[string]string
	is.NoErr(json.NewDecoder(resp.Body).Decode(&body))
	is.Equal(body["status"], "ok")
	is.True(body["version"] != "")
}

func TestServerShutdownClosesConnections(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, "hello")
	h.start()

	ws := h.dial()
	sendConfig(t, ws, map[string]string{}, "")
	sendAudio(t, ws)
	is.Equal(readEvent(t, ws), protocol.Final("hello"))

	h.cancel()
	eventually(t, func() bool { return testutil.ToFloat64(h.metrics.ConnectionsActive) == 0 })
	is.Equal(testutil.ToFloat64(h.metrics.ConnectionsTotal.WithLabelValues(statusShutdown)), 1.0)
	is.True(h.stt.Streams()[0].Closed())
}

func TestRunStopsOnCancel(t *testing.T) {
	is := is.New(t)
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(ctx, cfg, metrics.New("run"), nil)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		is.NoErr(err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
}

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func TestLogAttributesNotRepeated(t *testing.T) {
	is := is.New(t)
	var out lockedBuffer
	h := newHarness(t, "hello")
	h.logger = slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.start()

	ws := h.dial()
	sendConfig(t, ws, nil, "")
	sendAudio(t, ws)
	is.Equal(readEvent(t, ws), protocol.Final("hello"))

	handled := func() bool {
		for _, line := range out.lines() {
			if strings.Contains(line, `"msg":"Utterance handled"`) {
				return true
			}
		}
		return false
	}
	eventually(t, handled)

	for _, line := range out.lines() {
		is.True(strings.Count(line, `"component":`) <= 1) // component logged once
		is.True(strings.Count(line, `"session":`) <= 1)   // session logged once
		is.True(strings.Count(line, `"job_id":`) <= 1)    // job logged once
	}
}

func TestRejectsConnectionsAfterShutdown(t *testing.T) {
	is := is.New(t)
	h := newHarness(t)
	h.start()
	h.cancel()

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	is.True(err != nil)
	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)
}

func TestWaitStopsNewConnections(t *testing.T) {
	is := is.New(t)
	cfg := config.Default()
	handler := NewHandler(cfg, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	handler.Wait()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	is.True(err != nil)
	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)
}
