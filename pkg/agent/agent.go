// Package agent implements the per-utterance response pipeline: route the
// finalized transcript, optionally fetch context, generate a reply, record
// the exchange, and stream the reply back as text followed by synthesized
// sentence-sized audio segments.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/chriscow/voicegw/pkg/ai/augment"
	"github.com/chriscow/voicegw/pkg/ai/llm"
	"github.com/chriscow/voicegw/pkg/ai/tts"
	"github.com/chriscow/voicegw/pkg/bridge"
	"github.com/chriscow/voicegw/pkg/metrics"
	"github.com/chriscow/voicegw/pkg/persona"
	"github.com/chriscow/voicegw/pkg/protocol"
	"github.com/chriscow/voicegw/pkg/router"
	"github.com/chriscow/voicegw/pkg/segment"
	"github.com/chriscow/voicegw/pkg/session"
)

// Stage is the furthest point an orchestration pass reached.
type Stage int32

const (
	StageReceived Stage = iota
	StageRouted
	StageAugmented
	StageGenerated
	StageHistoryUpdated
	StageSegmented
	StageSynthesized
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "Received"
	case StageRouted:
		return "Routed"
	case StageAugmented:
		return "Augmented"
	case StageGenerated:
		return "Generated"
	case StageHistoryUpdated:
		return "HistoryUpdated"
	case StageSegmented:
		return "Segmented"
	case StageSynthesized:
		return "Synthesized"
	case StageDone:
		return "Done"
	case StageFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Emitter delivers events to the client. An error means the connection is
// gone and the pass must stop.
type Emitter interface {
	Emit(ctx context.Context, ev protocol.Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev protocol.Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, ev protocol.Event) error {
	return f(ctx, ev)
}

// Timeouts bound each provider call.
type Timeouts struct {
	Augment    time.Duration
	Generate   time.Duration
	Synthesize time.Duration
}

// DefaultTimeouts are used for zero fields.
var DefaultTimeouts = Timeouts{
	Augment:    10 * time.Second,
	Generate:   30 * time.Second,
	Synthesize: 20 * time.Second,
}

// Config holds configuration for creating an Orchestrator.
type Config struct {
	Providers Providers
	Emitter   Emitter
	Timeouts  Timeouts
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Result describes one orchestration pass.
type Result struct {
	Stage     Stage
	Decision  router.Decision
	Reply     string
	Segments  []string
	AudioSent int
	Err       error
}

// Orchestrator runs the response pipeline for one connection. Handle is
// called by a single consumer, one utterance at a time.
type Orchestrator struct {
	providers Providers
	emitter   Emitter
	timeouts  Timeouts
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates an Orchestrator with the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Emitter == nil {
		return nil, fmt.Errorf("emitter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := cfg.Timeouts
	if t.Augment <= 0 {
		t.Augment = DefaultTimeouts.Augment
	}
	if t.Generate <= 0 {
		t.Generate = DefaultTimeouts.Generate
	}
	if t.Synthesize <= 0 {
		t.Synthesize = DefaultTimeouts.Synthesize
	}

	return &Orchestrator{
		providers: cfg.Providers,
		emitter:   cfg.Emitter,
		timeouts:  t,
		logger:    cfg.Logger.With(slog.String("component", "orchestrator")),
		metrics:   cfg.Metrics,
	}, nil
}

// Handle processes one finalized utterance. Events are emitted in the order
// final, assistant, audio*. The session history gains exactly one
// user/assistant pair unless the pass fails before a reply exists.
func (o *Orchestrator) Handle(ctx context.Context, sess *session.Session, utt bridge.Utterance) (res Result) {
	start := time.Now()
	logger := o.logger.With(slog.String("session", sess.ID), slog.Uint64("seq", utt.Seq))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while handling utterance",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			res.Stage = StageFailed
			res.Err = fmt.Errorf("panic: %v", r)
			_ = o.emitter.Emit(ctx, protocol.LLMError(ApologyUnexpected))
		}

		outcome := metrics.OutcomeDone
		if res.Stage == StageFailed {
			outcome = metrics.OutcomeFailed
		}
		o.metrics.Utterance(res.Decision.Kind.String(), outcome)
		logger.Info("Utterance handled",
			slog.String("stage", res.Stage.String()),
			slog.String("route", res.Decision.Kind.String()),
			slog.Int("segments", len(res.Segments)),
			slog.Int("audio_sent", res.AudioSent),
			slog.Duration("duration", time.Since(start)))
	}()

	fail := func(err error) Result {
		res.Stage = StageFailed
		res.Err = err
		return res
	}

	if err := o.emitter.Emit(ctx, protocol.Final(utt.Text)); err != nil {
		return fail(fmt.Errorf("emit final: %w", err))
	}

	p := sess.Persona()
	res.Decision = router.Route(utt.Text, p)
	res.Stage = StageRouted

	var reply string
	switch res.Decision.Kind {
	case router.QuickReply:
		reply = res.Decision.Reply

	case router.NewsRequest, router.WebSearchRequest:
		found, err := o.augment(ctx, res.Decision.Kind, utt.Text)
		switch {
		case errors.Is(err, augment.ErrNoResults):
			logger.Info("Lookup found nothing", slog.String("route", res.Decision.Kind.String()))
			reply = noResultsReply(res.Decision.Kind)
		case err != nil:
			logger.Warn("Lookup failed",
				slog.String("route", res.Decision.Kind.String()),
				slog.String("error", err.Error()))
			if emitErr := o.emitter.Emit(ctx, protocol.LLMError(lookupApology(res.Decision.Kind, err))); emitErr != nil {
				return fail(fmt.Errorf("emit llm_error: %w", emitErr))
			}
			return fail(err)
		default:
			res.Stage = StageAugmented
			reply = o.generate(ctx, logger, sess, p, AugmentedPrompt(utt.Text, found, res.Decision.Kind, p))
		}

	default:
		reply = o.generate(ctx, logger, sess, p, utt.Text)
	}
	res.Reply = reply
	res.Stage = StageGenerated

	sess.AppendExchange(utt.Text, reply)
	res.Stage = StageHistoryUpdated

	if err := o.emitter.Emit(ctx, protocol.Assistant(reply)); err != nil {
		return fail(fmt.Errorf("emit assistant: %w", err))
	}

	res.Stage = StageSegmented
	for seg := range segment.Sentences(reply) {
		res.Segments = append(res.Segments, seg)

		clip, err := o.synthesize(ctx, p, seg)
		if err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			logger.Warn("Skipping segment after synthesis failure",
				slog.Int("segment", len(res.Segments)),
				slog.String("error", err.Error()))
			o.metrics.SegmentDropped()
			continue
		}
		res.Stage = StageSynthesized

		if err := o.emitter.Emit(ctx, protocol.Audio(clip)); err != nil {
			return fail(fmt.Errorf("emit audio: %w", err))
		}
		o.metrics.AudioBytes("out", len(clip))
		res.AudioSent++
	}

	res.Stage = StageDone
	return res
}

// augment fetches context from the news or web search provider.
func (o *Orchestrator) augment(ctx context.Context, kind router.Kind, query string) (string, error) {
	capability, provider := session.WebSearch, o.providers.Search
	if kind == router.NewsRequest {
		capability, provider = session.News, o.providers.News
	}
	if provider == nil {
		return "", o.providers.Unavailable(capability)
	}
	return timed(ctx, o, capability, o.timeouts.Augment, func(ctx context.Context) (string, error) {
		return provider.Lookup(ctx, query)
	})
}

// generate asks the language model for a reply. Failures are absorbed into
// a fixed apology so the exchange still completes.
func (o *Orchestrator) generate(ctx context.Context, logger *slog.Logger, sess *session.Session, p persona.Persona, prompt string) string {
	if o.providers.LLM == nil {
		logger.Warn("Language generation unavailable",
			slog.String("reason", o.providers.Unavailable(session.LanguageGeneration).Error()))
		return ApologyGeneration
	}

	history := sess.History()
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: p.Instruction})
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	resp, err := timed(ctx, o, session.LanguageGeneration, o.timeouts.Generate, func(ctx context.Context) (llm.ChatResponse, error) {
		return o.providers.LLM.Chat(ctx, llm.ChatRequest{Messages: messages})
	})
	if err != nil {
		logger.Warn("Generation failed", slog.String("error", err.Error()))
		return ApologyGeneration
	}
	return resp.Message.Content
}

func (o *Orchestrator) synthesize(ctx context.Context, p persona.Persona, text string) ([]byte, error) {
	if o.providers.TTS == nil {
		return nil, o.providers.Unavailable(session.SpeechSynthesis)
	}
	return timed(ctx, o, session.SpeechSynthesis, o.timeouts.Synthesize, func(ctx context.Context) ([]byte, error) {
		return o.providers.TTS.Synthesize(ctx, tts.SynthesizeRequest{
			Text:  text,
			Voice: p.Voice,
			Style: p.VoiceStyle,
		})
	})
}

// timed runs one provider call under its timeout and records it.
func timed[T any](ctx context.Context, o *Orchestrator, capability session.Capability, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	v, err := call(ctx)
	o.metrics.ProviderCall(string(capability), err, time.Since(start))
	return v, err
}
