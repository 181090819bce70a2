package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chriscow/voicegw/pkg/ai"
	"github.com/chriscow/voicegw/pkg/ai/augment"
	augmentfake "github.com/chriscow/voicegw/pkg/ai/augment/fake"
	"github.com/chriscow/voicegw/pkg/ai/llm"
	llmfake "github.com/chriscow/voicegw/pkg/ai/llm/fake"
	"github.com/chriscow/voicegw/pkg/ai/tts"
	ttsfake "github.com/chriscow/voicegw/pkg/ai/tts/fake"
	"github.com/chriscow/voicegw/pkg/bridge"
	"github.com/chriscow/voicegw/pkg/metrics"
	"github.com/chriscow/voicegw/pkg/persona"
	"github.com/chriscow/voicegw/pkg/protocol"
	"github.com/chriscow/voicegw/pkg/router"
	"github.com/chriscow/voicegw/pkg/session"
)

// recorder collects emitted events. failAfter > 0 makes the emit with that
// 1-based index and every later one fail.
type recorder struct {
	mu        sync.Mutex
	events    []protocol.Event
	failAfter int
}

func (r *recorder) Emit(_ context.Context, ev protocol.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter > 0 && len(r.events)+1 >= r.failAfter {
		return errors.New("connection closed")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	llm    *llmfake.FakeLLM
	tts    *ttsfake.FakeTTS
	search *augmentfake.FakeProvider
	news   *augmentfake.FakeProvider
	rec    *recorder
	sess   *session.Session
	orch   *Orchestrator
	m      *metrics.Metrics
}

func newFixture(t *testing.T, personaID string) *fixture {
	t.Helper()
	f := &fixture{
		llm:    llmfake.NewFakeLLM("Hi there! How are you? Great."),
		tts:    ttsfake.NewFakeTTS(),
		search: augmentfake.NewFakeProvider("Sunny, 31 degrees."),
		news:   augmentfake.NewFakeProvider("Here are some headlines:\n1. Gophers win"),
		rec:    &recorder{},
		sess:   session.New(nil),
		m:      metrics.New(""),
	}
	if _, err := f.sess.Configure(protocol.Config{Persona: personaID}); err != nil {
		t.Fatal(err)
	}
	orch, err := New(Config{
		Providers: Providers{LLM: f.llm, TTS: f.tts, Search: f.search, News: f.news},
		Emitter:   f.rec,
		Metrics:   f.m,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.orch = orch
	return f
}

func utterance(seq uint64, text string) bridge.Utterance {
	return bridge.Utterance{Seq: seq, Text: text, FinalizedAt: time.Now()}
}

func TestNewRequiresEmitter(t *testing.T) {
	is := is.New(t)
	_, err := New(Config{})
	is.True(err != nil)
}

func TestQuickReplyGreeting(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "hello"))

	is.Equal(res.Stage, StageDone)
	is.Equal(res.Decision.Kind, router.QuickReply)
	want, _ := persona.Lookup("me").QuickReply("hello")
	is.Equal(res.Reply, want)
	is.Equal(len(f.llm.Requests()), 0) // quick replies skip generation

	is.Equal(f.rec.types(), []string{protocol.TypeFinal, protocol.TypeAssistant, protocol.TypeAudio})
	is.Equal(f.rec.events[0].Text, "hello")
	is.Equal(f.rec.events[1].Text, want)
	clip, err := f.rec.events[2].AudioBytes()
	is.NoErr(err)
	is.True(len(clip) > 44)

	history := f.sess.History()
	is.Equal(len(history), 2)
	is.Equal(history[0], session.Turn{Role: session.RoleUser, Text: "hello"})
	is.Equal(history[1], session.Turn{Role: session.RoleAssistant, Text: want})
}

func TestQuickReplyHistoryShapeAcrossPersonas(t *testing.T) {
	for _, id := range []string{"me", "pirate", "butler", "coach"} {
		t.Run(id, func(t *testing.T) {
			is := is.New(t)
			f := newFixture(t, id)

			res := f.orch.Handle(context.Background(), f.sess, utterance(1, "Hello"))
			is.Equal(res.Decision.Kind, router.QuickReply)

			want, _ := persona.Lookup(id).QuickReply("hello")
			is.Equal(f.sess.History(), []session.Turn{
				{Role: session.RoleUser, Text: "Hello"},
				{Role: session.RoleAssistant, Text: want},
			})
		})
	}
}

func TestNewsFailureLeavesHistoryUntouched(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	f.news.Err = ai.NewRecoverableError(errors.New("timeout"), "newsapi")

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "what's the news today"))

	is.Equal(res.Stage, StageFailed)
	is.Equal(res.Decision.Kind, router.NewsRequest)
	is.True(res.Err != nil)
	is.Equal(f.rec.types(), []string{protocol.TypeFinal, protocol.TypeLLMError})
	is.Equal(f.rec.events[1].Text, ApologyNews)
	is.Equal(len(f.sess.History()), 0)
	is.Equal(len(f.search.Queries()), 0)
	is.Equal(testutil.ToFloat64(f.m.UtterancesTotal.WithLabelValues("news", metrics.OutcomeFailed)), 1.0)
}

func TestMissingNewsKeyApology(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	f.orch.providers.News = nil
	f.orch.providers.Reasons = map[session.Capability]error{session.News: ai.ErrMissingCredential}

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "latest headlines please"))

	is.Equal(res.Stage, StageFailed)
	is.True(errors.Is(res.Err, ErrProviderUnavailable))
	is.Equal(f.rec.events[1], protocol.LLMError(ApologyNewsKey))
	is.Equal(len(f.sess.History()), 0)
}

func TestWebSearchAugmentsPrompt(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "pirate")

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "what's the weather in Delhi"))

	is.Equal(res.Stage, StageDone)
	is.Equal(res.Decision.Kind, router.WebSearchRequest)
	is.Equal(f.search.Queries(), []string{"what's the weather in Delhi"})

	reqs := f.llm.Requests()
	is.Equal(len(reqs), 1)
	p := persona.Lookup("pirate")
	is.Equal(reqs[0].SystemPrompt(), p.Instruction)
	conv := reqs[0].Conversation()
	is.Equal(conv[len(conv)-1].Content,
		"User asked: 'what's the weather in Delhi'\n\nBased on these search results:\nSunny, 31 degrees.\n\nGive a short, witty, and clear reply as "+p.DisplayName+".")

	// History keeps the user's words, not the augmented prompt.
	is.Equal(f.sess.History()[0].Text, "what's the weather in Delhi")
}

func TestNoResultsRepliesWithoutGeneration(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	f.search.Err = fmt.Errorf("serpapi: %w", augment.ErrNoResults)

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "what is the population of atlantis"))

	is.Equal(res.Stage, StageDone)
	is.Equal(res.Reply, NoResultsWeb)
	is.Equal(len(f.llm.Requests()), 0)
	is.Equal(len(f.sess.History()), 2)
}

func TestGeneralQuerySegmentsReply(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "tell me a joke"))

	is.Equal(res.Stage, StageDone)
	is.Equal(res.Decision.Kind, router.GeneralQuery)
	is.Equal(res.Segments, []string{"Hi there!", "How are you?", "Great."})
	is.Equal(res.AudioSent, 3)
	is.Equal(f.rec.types(), []string{
		protocol.TypeFinal, protocol.TypeAssistant,
		protocol.TypeAudio, protocol.TypeAudio, protocol.TypeAudio,
	})

	var texts []string
	for _, r := range f.tts.Requests() {
		texts = append(texts, r.Text)
		is.Equal(r.Voice, persona.Lookup("me").Voice)
	}
	is.Equal(texts, res.Segments)
}

func TestGenerationIncludesHistory(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	ctx := context.Background()

	f.orch.Handle(ctx, f.sess, utterance(1, "hi"))
	f.orch.Handle(ctx, f.sess, utterance(2, "tell me a joke"))

	reqs := f.llm.Requests()
	is.Equal(len(reqs), 1)
	conv := reqs[0].Conversation()
	is.Equal(len(conv), 3)
	is.Equal(conv[0], llm.Message{Role: llm.RoleUser, Content: "hi"})
	is.Equal(conv[1].Role, llm.RoleAssistant)
	is.Equal(conv[2], llm.Message{Role: llm.RoleUser, Content: "tell me a joke"})
	is.Equal(len(f.sess.History()), 4)
}

func TestGenerationFailureIsAbsorbed(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	f.llm.Err = ai.NewFatalError(errors.New("401"), "gemini")

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "tell me a joke"))

	is.Equal(res.Stage, StageDone)
	is.Equal(res.Reply, ApologyGeneration)
	is.Equal(f.rec.events[1], protocol.Assistant(ApologyGeneration))
	history := f.sess.History()
	is.Equal(len(history), 2)
	is.Equal(history[1].Text, ApologyGeneration)
}

func TestGenerationTimeout(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	f.llm.Delay = time.Second
	f.orch.timeouts.Generate = 10 * time.Millisecond

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "tell me a story"))

	is.Equal(res.Reply, ApologyGeneration)
	is.Equal(testutil.ToFloat64(f.m.ProviderCallsTotal.WithLabelValues(string(session.LanguageGeneration), metrics.StatusError)), 1.0)
}

func TestFailingSegmentIsSkipped(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	f.tts.FailOn = []string{"How are you"}

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "tell me a joke"))

	is.Equal(res.Stage, StageDone)
	is.Equal(len(res.Segments), 3)
	is.Equal(res.AudioSent, 2)
	is.Equal(testutil.ToFloat64(f.m.SegmentsDropped), 1.0)
}

func TestMissingTTSStillSendsText(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	f.orch.providers.TTS = nil

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "hello"))

	is.Equal(res.Stage, StageDone)
	is.Equal(res.AudioSent, 0)
	is.Equal(f.rec.types(), []string{protocol.TypeFinal, protocol.TypeAssistant})
}

func TestEmitFailureAborts(t *testing.T) {
	tests := []struct {
		name        string
		failAfter   int
		wantHistory int
		wantEvents  int
	}{
		{"final", 1, 0, 0},
		{"assistant", 2, 2, 1},
		{"audio", 3, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			f := newFixture(t, "me")
			f.rec.failAfter = tt.failAfter

			res := f.orch.Handle(context.Background(), f.sess, utterance(1, "tell me a joke"))

			is.Equal(res.Stage, StageFailed)
			is.Equal(len(f.rec.events), tt.wantEvents)
			is.Equal(len(f.sess.History()), tt.wantHistory)
		})
	}
}

type panickyTTS struct{}

func (panickyTTS) Synthesize(context.Context, tts.SynthesizeRequest) ([]byte, error) {
	panic("codec exploded")
}

func (panickyTTS) Capabilities() tts.TTSCapabilities { return tts.TTSCapabilities{} }

func TestPanicBecomesApology(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	f.orch.providers.TTS = panickyTTS{}

	res := f.orch.Handle(context.Background(), f.sess, utterance(1, "hello"))

	is.Equal(res.Stage, StageFailed)
	is.True(res.Err != nil)
	types := f.rec.types()
	is.Equal(types[len(types)-1], protocol.TypeLLMError)
	is.Equal(f.rec.events[len(types)-1].Text, ApologyUnexpected)
}

func TestUtterancesHandledInOrder(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	b := bridge.New(4, nil)

	for _, text := range []string{"hello", "tell me a joke", "thanks"} {
		b.Notify(text)
	}
	b.Close()
	b.Run(context.Background(), func(ctx context.Context, u bridge.Utterance) {
		f.orch.Handle(ctx, f.sess, u)
	})

	// Every utterance's events precede the next utterance's final.
	var finals []string
	lastFinal := -1
	for i, ev := range f.rec.events {
		if ev.Type == protocol.TypeFinal {
			finals = append(finals, ev.Text)
			if lastFinal >= 0 {
				is.Equal(f.rec.events[lastFinal+1].Type, protocol.TypeAssistant)
			}
			lastFinal = i
		}
	}
	is.Equal(finals, []string{"hello", "tell me a joke", "thanks"})

	history := f.sess.History()
	is.Equal(len(history), 6)
	is.Equal(history[4].Text, "thanks")
}

func TestCancelledContextFails(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, "me")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.orch.Handle(ctx, f.sess, utterance(1, "hello"))

	is.Equal(res.Stage, StageFailed)
	is.True(errors.Is(res.Err, context.Canceled))
}

func TestStageString(t *testing.T) {
	is := is.New(t)
	is.Equal(StageDone.String(), "Done")
	is.Equal(StageFailed.String(), "Failed")
	is.Equal(Stage(99).String(), "Unknown(99)")
}
