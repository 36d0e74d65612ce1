// ABOUTME: Tests for the turn scheduler state machine
// ABOUTME: Covers turn budget, injection contract, stop/cancel, continuation, ask

package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/internal/inference"
	"github.com/parley-sh/parley/internal/memory"
	"github.com/parley-sh/parley/internal/notify"
	"github.com/parley-sh/parley/internal/reply"
	"github.com/parley-sh/parley/internal/store"
)

// fakeClient scripts completions. fn receives the 1-based call number; nil
// fn answers with a numbered sentence.
type fakeClient struct {
	mu    sync.Mutex
	calls [][]inference.Message
	fn    func(ctx context.Context, n int, history []inference.Message) (string, error)
}

func (f *fakeClient) Complete(ctx context.Context, history []inference.Message, _ inference.Options) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(history))
	n := len(f.calls)
	fn := f.fn
	f.mu.Unlock()

	if fn == nil {
		return fmt.Sprintf("Reply number %d.", n), nil
	}
	return fn(ctx, n, history)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) call(n int) []inference.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[n-1]
}

func newTestScheduler(t *testing.T, a, b Completer, settings Settings, deps Deps) (*Scheduler, <-chan notify.Event) {
	t.Helper()
	if settings.Topic == "" {
		settings.Topic = "tide pools"
	}
	if settings.Turns == 0 {
		settings.Turns = 4
	}
	s := New(
		&Agent{ID: "a", Name: "Aria", Client: a},
		&Agent{ID: "b", Name: "Bram", Client: b},
		settings, deps,
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	ch, _ := s.Subscribe(ctx)
	return s, ch
}

// nextEvent drains the channel until an event of one of the wanted kinds
// arrives.
func nextEvent(t *testing.T, ch <-chan notify.Event, kinds ...notify.Kind) notify.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "update channel closed while waiting for %v", kinds)
			if slices.Contains(kinds, ev.Kind) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", kinds)
		}
	}
}

func TestRun_HaltsAfterTurnBudget(t *testing.T) {
	a, b := &fakeClient{}, &fakeClient{}
	s, ch := newTestScheduler(t, a, b, Settings{Turns: 4}, Deps{})

	s.Start("")

	var senders []string
	for {
		ev := nextEvent(t, ch, notify.KindAgentReply, notify.KindRunFinished)
		if ev.Kind == notify.KindRunFinished {
			assert.Equal(t, "turn budget reached", ev.Text)
			break
		}
		senders = append(senders, ev.Sender)
	}

	assert.Equal(t, []string{"Bram", "Aria", "Bram", "Aria"}, senders, "exactly 4 replies, alternating")
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 2, a.callCount())
	assert.Equal(t, 2, b.callCount())
}

func TestStart_GreetingGoesToFirstSpeaker(t *testing.T) {
	a, b := &fakeClient{}, &fakeClient{}
	s, ch := newTestScheduler(t, a, b, Settings{Turns: 1}, Deps{})

	s.Start("What do you think about anemones?")
	nextEvent(t, ch, notify.KindRunFinished)

	msgs := b.call(1)
	require.Len(t, msgs, 2)
	assert.Equal(t, inference.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "You are Bram")
	assert.Contains(t, msgs[0].Content, "tide pools")
	assert.Equal(t, "What do you think about anemones?", msgs[1].Content)
}

func TestStart_WhileRunningIsRejected(t *testing.T) {
	release := make(chan struct{})
	b := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		if n == 1 {
			<-release
		}
		return "Sure.", nil
	}}
	s, ch := newTestScheduler(t, &fakeClient{}, b, Settings{Turns: 1}, Deps{})

	s.Start("")
	nextEvent(t, ch, notify.KindUserMessage)

	s.Start("again")
	ev := nextEvent(t, ch, notify.KindStatus)
	assert.Equal(t, "conversation already running", ev.Text)
	close(release)
}

func TestInject_WhileIdleOpensRun(t *testing.T) {
	a, b := &fakeClient{}, &fakeClient{}
	s, ch := newTestScheduler(t, a, b, Settings{Turns: 1}, Deps{})

	s.Inject("pat", "Tell me about limpets")

	ev := nextEvent(t, ch, notify.KindUserMessage)
	assert.Equal(t, "pat", ev.Sender)
	assert.Equal(t, "Tell me about limpets", ev.Text)

	nextEvent(t, ch, notify.KindRunFinished)
	msgs := b.call(1)
	assert.Equal(t, "Tell me about limpets", msgs[len(msgs)-1].Content, "message became the greeting")
}

func TestInject_WhileRunningQueuedFIFOConsumedOnce(t *testing.T) {
	release := make(chan struct{})
	b := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		if n == 1 {
			<-release
		}
		return fmt.Sprintf("Bram thought %d.", n), nil
	}}
	a := &fakeClient{}
	s, ch := newTestScheduler(t, a, b, Settings{Turns: 4}, Deps{})

	s.Start("")
	nextEvent(t, ch, notify.KindUserMessage)

	s.Inject("pat", "first note")
	s.Inject("pat", "second note")
	nextEvent(t, ch, notify.KindUserMessage)
	nextEvent(t, ch, notify.KindUserMessage)
	close(release)

	nextEvent(t, ch, notify.KindRunFinished)

	countIn := func(msgs []inference.Message, want string) int {
		n := 0
		for _, m := range msgs {
			if m.Content == want {
				n++
			}
		}
		return n
	}

	// The turn after the injections sees both, tagged and in order.
	turn2 := a.call(1)
	first := slices.IndexFunc(turn2, func(m inference.Message) bool { return m.Content == "[pat]: first note" })
	second := slices.IndexFunc(turn2, func(m inference.Message) bool { return m.Content == "[pat]: second note" })
	require.GreaterOrEqual(t, first, 0, "first injection delivered")
	require.GreaterOrEqual(t, second, 0, "second injection delivered")
	assert.Less(t, first, second, "FIFO order preserved")

	// Consumed exactly once: later payloads carry each message a single
	// time, from history rather than the queue.
	for _, msgs := range [][]inference.Message{a.call(1), a.call(2), b.call(2)} {
		assert.Equal(t, 1, countIn(msgs, "[pat]: first note"))
		assert.Equal(t, 1, countIn(msgs, "[pat]: second note"))
	}
}

func TestStop_InFlightResultNeverApplied(t *testing.T) {
	b := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	s, ch := newTestScheduler(t, &fakeClient{}, b, Settings{Turns: 4}, Deps{})

	s.Start("")
	nextEvent(t, ch, notify.KindUserMessage)

	s.Stop()
	ev := nextEvent(t, ch, notify.KindRunFinished)
	assert.Equal(t, "stopped", ev.Text)
	assert.Equal(t, StateIdle, s.State())

	// The cancelled call must not surface as a reply afterwards.
	select {
	case ev := <-ch:
		assert.NotEqual(t, notify.KindAgentReply, ev.Kind, "late result leaked: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTurnFailure_HaltsWithVisibleNote(t *testing.T) {
	wantErr := errors.New("connection refused")
	b := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		return "", wantErr
	}}
	s, ch := newTestScheduler(t, &fakeClient{}, b, Settings{Turns: 4}, Deps{})

	s.Start("")

	ev := nextEvent(t, ch, notify.KindTurnFailed)
	assert.Equal(t, "Bram", ev.Sender)
	require.Error(t, ev.Err)

	note := nextEvent(t, ch, notify.KindSystemNote)
	assert.Contains(t, note.Text, "Bram did not reply")

	fin := nextEvent(t, ch, notify.KindRunFinished)
	assert.Equal(t, "turn failed", fin.Text)
	assert.Equal(t, StateIdle, s.State())
}

func TestContinuation_SingleAttemptThenCombined(t *testing.T) {
	b := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		if n == 1 {
			return "I was thinking about", nil
		}
		return "the ocean floor.", nil
	}}
	s, ch := newTestScheduler(t, &fakeClient{}, b, Settings{Turns: 1}, Deps{})

	s.Start("")

	ev := nextEvent(t, ch, notify.KindAgentReply)
	assert.Equal(t, "I was thinking about the ocean floor.", ev.Text)
	nextEvent(t, ch, notify.KindRunFinished)

	require.Equal(t, 2, b.callCount(), "exactly one continuation attempt")
	followup := b.call(2)
	last := followup[len(followup)-1]
	assert.Equal(t, inference.RoleUser, last.Role)
	assert.Equal(t, reply.ContinuationPrompt, last.Content)
	assert.Equal(t, inference.RoleAssistant, followup[len(followup)-2].Role)
	assert.Equal(t, "I was thinking about", followup[len(followup)-2].Content)

	assert.Equal(t, StateIdle, s.State())
}

func TestContinuation_NotIssuedTwice(t *testing.T) {
	b := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		// Both parts trail off; only one continuation is allowed anyway.
		return "and then it kept going", nil
	}}
	s, ch := newTestScheduler(t, &fakeClient{}, b, Settings{Turns: 1}, Deps{})

	s.Start("")
	nextEvent(t, ch, notify.KindRunFinished)
	assert.Equal(t, 2, b.callCount())
}

func TestShortTurn_KeepsFirstSentence(t *testing.T) {
	b := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		return "First point here. Second point there. Third one too.", nil
	}}
	s, ch := newTestScheduler(t, &fakeClient{}, b, Settings{Turns: 1, ShortTurn: true}, Deps{})

	s.Start("")

	ev := nextEvent(t, ch, notify.KindAgentReply)
	assert.Equal(t, "First point here.", ev.Text)
}

func TestMaxChars_TruncatesAtWordBoundary(t *testing.T) {
	b := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		return "The quick brown fox jumps over the lazy dog.", nil
	}}
	s, ch := newTestScheduler(t, &fakeClient{}, b, Settings{Turns: 1, MaxChars: 20}, Deps{})

	s.Start("")

	ev := nextEvent(t, ch, notify.KindAgentReply)
	assert.Equal(t, "The quick brown fox"+reply.Ellipsis, ev.Text)
	assert.False(t, strings.Contains(strings.TrimSuffix(ev.Text, reply.Ellipsis), "jump"), "no mid-word cut")
}

func TestAsk_OutOfBandWhileIdle(t *testing.T) {
	a := &fakeClient{fn: func(ctx context.Context, n int, _ []inference.Message) (string, error) {
		return "A tide is the sea breathing.", nil
	}}
	s, ch := newTestScheduler(t, a, &fakeClient{}, Settings{}, Deps{})

	s.Ask("a", "What is a tide?")

	ev := nextEvent(t, ch, notify.KindAgentReply)
	assert.Equal(t, "Aria", ev.Sender)
	assert.Equal(t, "A tide is the sea breathing.", ev.Text)
	assert.Equal(t, StateIdle, s.State(), "ask never changes the run state")

	msgs := a.call(1)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "You are Aria")
	assert.Equal(t, "What is a tide?", msgs[1].Content)
}

func TestAsk_UnknownAgent(t *testing.T) {
	s, ch := newTestScheduler(t, &fakeClient{}, &fakeClient{}, Settings{}, Deps{})
	s.Ask("c", "hello?")
	ev := nextEvent(t, ch, notify.KindStatus)
	assert.Contains(t, ev.Text, `unknown agent "c"`)
}

func TestMemory_FactsFlowIntoTurnPayload(t *testing.T) {
	facts, err := memory.Load(t.Context(), store.NewMockStore(), nil)
	require.NoError(t, err)

	b := &fakeClient{}
	s, ch := newTestScheduler(t, &fakeClient{}, b, Settings{Turns: 2}, Deps{Facts: facts})

	s.Inject("pat", "I live in Seattle")

	noted := nextEvent(t, ch, notify.KindStatus)
	for !strings.Contains(noted.Text, "noted") {
		noted = nextEvent(t, ch, notify.KindStatus)
	}
	assert.Equal(t, "noted location: Seattle", noted.Text)

	nextEvent(t, ch, notify.KindRunFinished)

	var sawNote bool
	for _, m := range b.call(1) {
		if m.Role == inference.RoleSystem && strings.Contains(m.Content, "Seattle") &&
			strings.Contains(m.Content, "Known facts") {
			sawNote = true
		}
	}
	assert.True(t, sawNote, "memory note missing from turn payload")
}

type fakeAdmin struct {
	models []string
}

func (f *fakeAdmin) ListModels(ctx context.Context) ([]string, error) { return f.models, nil }
func (f *fakeAdmin) Pull(ctx context.Context, model string, progress func(inference.PullProgress)) error {
	if progress != nil {
		progress(inference.PullProgress{Status: "downloading", Completed: 10, Total: 100})
	}
	return nil
}
func (f *fakeAdmin) Remove(ctx context.Context, model string) error { return nil }

func TestModelAdmin_ThroughScheduler(t *testing.T) {
	s, ch := newTestScheduler(t, &fakeClient{}, &fakeClient{}, Settings{}, Deps{Admin: &fakeAdmin{models: []string{"llama3", "qwen2"}}})

	s.Models()
	ev := nextEvent(t, ch, notify.KindModels)
	assert.Equal(t, []string{"llama3", "qwen2"}, ev.Models)

	s.Pull("llama3")
	prog := nextEvent(t, ch, notify.KindPullProgress)
	assert.Contains(t, prog.Text, "downloading")
	done := nextEvent(t, ch, notify.KindStatus)
	assert.Equal(t, "pull complete: llama3", done.Text)

	s.Remove("qwen2")
	rm := nextEvent(t, ch, notify.KindStatus)
	assert.Equal(t, "model removed: qwen2", rm.Text)
}

func TestModelAdmin_Unavailable(t *testing.T) {
	s, ch := newTestScheduler(t, &fakeClient{}, &fakeClient{}, Settings{}, Deps{})
	s.Models()
	ev := nextEvent(t, ch, notify.KindStatus)
	assert.Equal(t, "model administration unavailable", ev.Text)
}

func TestTranscript_PersistedThroughStore(t *testing.T) {
	ms := store.NewMockStore()
	s, ch := newTestScheduler(t, &fakeClient{}, &fakeClient{}, Settings{Turns: 2}, Deps{Store: ms})

	s.Start("Talk about kelp.")
	nextEvent(t, ch, notify.KindRunFinished)

	entries, err := ms.ListTranscript(t.Context(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3, "greeting plus two replies")
	assert.Equal(t, inference.RoleUser, entries[0].Role)
	assert.Equal(t, "Talk about kelp.", entries[0].Content)
	assert.Equal(t, inference.RoleAssistant, entries[1].Role)
	assert.Equal(t, "Bram", entries[1].Sender)
	assert.Equal(t, inference.RoleAssistant, entries[2].Role)
	assert.Equal(t, "Aria", entries[2].Sender)
}
