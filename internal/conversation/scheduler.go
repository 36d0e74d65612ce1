// ABOUTME: Turn scheduler state machine for a two-agent conversation
// ABOUTME: All session mutation happens on the run loop, the single control context

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-sh/parley/internal/inference"
	"github.com/parley-sh/parley/internal/memory"
	"github.com/parley-sh/parley/internal/notify"
	"github.com/parley-sh/parley/internal/reply"
	"github.com/parley-sh/parley/internal/store"
	"github.com/parley-sh/parley/internal/task"
)

// saveTimeout bounds persistence writes so a stalled database cannot wedge
// the run loop.
const saveTimeout = 5 * time.Second

// ModelAdmin is the slice of the inference client used for model
// administration from a running session.
type ModelAdmin interface {
	ListModels(ctx context.Context) ([]string, error)
	Pull(ctx context.Context, model string, progress func(inference.PullProgress)) error
	Remove(ctx context.Context, model string) error
}

// Deps are the scheduler's optional collaborators. Nil fields disable the
// corresponding feature.
type Deps struct {
	Facts  *memory.Facts // persistent fact memory
	Store  store.Store   // transcript persistence
	Admin  ModelAdmin    // model administration during a session
	Logger *slog.Logger
}

type cmdOp int

const (
	cmdStart cmdOp = iota
	cmdStop
	cmdInject
	cmdAsk
	cmdModels
	cmdPull
	cmdRemove
)

// command is one request posted to the run loop.
type command struct {
	op      cmdOp
	text    string
	sender  string
	agentID string
}

// Scheduler drives the alternating conversation between two agents.
//
// The run loop started by Run is the only goroutine that touches session
// state (histories, injection queue, turn counter, in-flight handle).
// Producers reach it through the command channel; background task results
// arrive through the dispatcher's feed. Observers subscribe for updates.
type Scheduler struct {
	agents   [2]*Agent
	settings Settings
	deps     Deps
	logger   *slog.Logger

	inbox   *notify.Feed
	updates *Broadcaster
	disp    *task.Dispatcher
	cmds    chan command

	mu    sync.RWMutex
	state State

	// Run-loop-owned session state. Never touched off the loop.
	sessionID    string
	histories    [2][]inference.Message
	pending      []injection
	next         int // index of the agent speaking next
	replies      int // replies applied this run
	inflight     *task.Handle
	turnMsgs     []inference.Message // payload of the in-flight turn
	continued    bool                // continuation already attempted this turn
	partial      string              // first part of a continued reply
	outOfBand    map[string]*task.Handle
	lastInjected string // relevance query for the memory note
	delayTimer   *time.Timer
}

// New creates a scheduler for the two agents. Agent a speaks second; agent
// b receives the opening line, matching the original alternation.
func New(a, b *Agent, settings Settings, deps Deps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	inbox := notify.NewFeed(deps.Logger)
	return &Scheduler{
		agents:    [2]*Agent{a, b},
		settings:  settings,
		deps:      deps,
		logger:    logger.With("component", "scheduler"),
		inbox:     inbox,
		updates:   NewBroadcaster(deps.Logger),
		disp:      task.NewDispatcher(inbox, deps.Logger),
		cmds:      make(chan command, 64),
		outOfBand: make(map[string]*task.Handle),
	}
}

// State returns the scheduler's lifecycle state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Subscribe registers an observer for session updates. The subscription is
// cleaned up when ctx is cancelled.
func (s *Scheduler) Subscribe(ctx context.Context) (<-chan notify.Event, string) {
	return s.updates.Subscribe(ctx)
}

// Start begins a run with the given opening line. Empty means the
// configured or default greeting. No-op while already running.
func (s *Scheduler) Start(greeting string) {
	s.cmds <- command{op: cmdStart, text: greeting}
}

// Stop ends the current run. The in-flight agent call, if any, is cancelled
// and its late result discarded.
func (s *Scheduler) Stop() {
	s.cmds <- command{op: cmdStop}
}

// Inject delivers an observer message. While idle it opens a new run with
// the message as the greeting; while running it joins the FIFO injection
// queue and is consumed exactly once at the next turn boundary.
func (s *Scheduler) Inject(sender, text string) {
	s.cmds <- command{op: cmdInject, sender: sender, text: text}
}

// Ask sends a one-off question to a single agent, outside the alternating
// sequence. Runs concurrently with the conversation.
func (s *Scheduler) Ask(agentID, text string) {
	s.cmds <- command{op: cmdAsk, agentID: agentID, text: text}
}

// Models requests a model list refresh; the result arrives as a KindModels
// update.
func (s *Scheduler) Models() {
	s.cmds <- command{op: cmdModels}
}

// Pull downloads a model in the background, streaming KindPullProgress
// updates.
func (s *Scheduler) Pull(model string) {
	s.cmds <- command{op: cmdPull, text: model}
}

// Remove deletes a model in the background.
func (s *Scheduler) Remove(model string) {
	s.cmds <- command{op: cmdRemove, text: model}
}

// Run executes the scheduler loop until ctx is cancelled. It owns all
// session state; nothing else mutates it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"agent_a", s.agents[0].Name,
		"agent_b", s.agents[1].Name,
		"turns", s.settings.Turns,
	)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		case ev := <-s.inbox.Events():
			s.handleTaskEvent(ev)
		case <-s.delayC():
			s.delayTimer = nil
			s.startTurn()
		}
	}
}

func (s *Scheduler) delayC() <-chan time.Time {
	if s.delayTimer == nil {
		return nil
	}
	return s.delayTimer.C
}

func (s *Scheduler) shutdown() {
	if s.inflight != nil {
		s.disp.Cancel(s.inflight)
		s.inflight = nil
	}
	for _, h := range s.outOfBand {
		s.disp.Cancel(h)
	}
	s.disp.Wait()
	s.inbox.Close()
	s.updates.Close()
	s.setState(StateIdle)
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) handleCommand(cmd command) {
	switch cmd.op {
	case cmdStart:
		if s.State() == StateRunning {
			s.publish(notify.Event{Kind: notify.KindStatus, Text: "conversation already running"})
			return
		}
		s.beginRun(cmd.text, "")
	case cmdStop:
		if s.State() != StateRunning {
			s.logger.Debug("stop while idle ignored")
			return
		}
		s.endRun("stopped")
	case cmdInject:
		s.handleInject(cmd.sender, cmd.text)
	case cmdAsk:
		s.spawnAsk(cmd.agentID, cmd.text)
	case cmdModels:
		s.spawnModels()
	case cmdPull:
		s.spawnPull(cmd.text)
	case cmdRemove:
		s.spawnRemove(cmd.text)
	}
}

// handleInject implements the dual idle/running contract for observer
// messages.
func (s *Scheduler) handleInject(sender, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if sender == "" {
		sender = "observer"
	}

	if s.State() != StateRunning {
		s.beginRun(text, sender)
		return
	}

	s.pending = append(s.pending, injection{Sender: sender, Text: text})
	s.lastInjected = text
	s.recordFacts(text)
	s.publish(notify.Event{Kind: notify.KindUserMessage, Sender: sender, Text: text})
	s.saveEntry(&store.TranscriptEntry{
		Role:    inference.RoleUser,
		Sender:  sender,
		Content: text,
	})
	s.logger.Debug("message queued for next turn", "sender", sender, "queued", len(s.pending))
}

// beginRun resets session state and opens a new conversation. The greeting
// goes to the second agent, which speaks first.
func (s *Scheduler) beginRun(greeting, sender string) {
	if greeting == "" {
		greeting = defaultGreeting(s.settings)
	}
	if sender == "" {
		sender = "opening"
	}

	s.sessionID = uuid.New().String()
	s.replies = 0
	s.pending = nil
	s.partial = ""
	s.continued = false
	s.lastInjected = greeting
	s.histories[0] = []inference.Message{{Role: inference.RoleSystem, Content: systemPrompt(s.agents[0], s.agents[1], s.settings)}}
	s.histories[1] = []inference.Message{{Role: inference.RoleSystem, Content: systemPrompt(s.agents[1], s.agents[0], s.settings)}}
	s.histories[1] = append(s.histories[1], inference.Message{Role: inference.RoleUser, Content: greeting})
	s.next = 1
	s.setState(StateRunning)

	s.logger.Info("conversation started", "session_id", s.sessionID, "topic", s.settings.Topic)
	s.publish(notify.Event{Kind: notify.KindStatus, Text: fmt.Sprintf("conversation started on: %s", s.settings.Topic)})
	s.publish(notify.Event{Kind: notify.KindUserMessage, Sender: sender, Text: greeting})
	s.recordFacts(greeting)
	s.saveEntry(&store.TranscriptEntry{
		Role:    inference.RoleUser,
		Sender:  sender,
		Content: greeting,
	})

	s.startTurn()
}

// startTurn drains the injection queue into both histories and spawns the
// next agent call. Exactly one agent call is in flight per conversation.
func (s *Scheduler) startTurn() {
	if s.State() != StateRunning || s.inflight != nil {
		return
	}

	for _, inj := range s.pending {
		m := inference.Message{
			Role:    inference.RoleUser,
			Content: fmt.Sprintf("[%s]: %s", inj.Sender, inj.Text),
		}
		s.histories[0] = append(s.histories[0], m)
		s.histories[1] = append(s.histories[1], m)
	}
	s.pending = nil

	speaker := s.agents[s.next]
	msgs := slices.Clone(s.histories[s.next])
	if note := s.memoryNote(); note != "" {
		msgs = append(msgs, inference.Message{Role: inference.RoleSystem, Content: note})
	}

	s.turnMsgs = msgs
	s.continued = false
	s.partial = ""
	s.inflight = s.disp.Spawn(task.KindAgentCall, speaker.ID, func(ctx context.Context, _ *task.Handle) (string, error) {
		return speaker.Client.Complete(ctx, msgs, speaker.Options)
	})
	s.logger.Debug("turn started", "agent", speaker.Name, "reply_no", s.replies+1, "history_len", len(msgs))
}

// memoryNote builds the per-turn system note carrying known facts. Returns
// "" when memory is disabled or empty.
func (s *Scheduler) memoryNote() string {
	if s.deps.Facts == nil {
		return ""
	}
	summary := s.deps.Facts.Summary()
	if summary == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known facts about the human observer:\n")
	b.WriteString(summary)
	if s.lastInjected != "" {
		rel := s.deps.Facts.Relevant(s.lastInjected, memory.DefaultRelevantLimit)
		if len(rel) > 0 {
			b.WriteString("\nMost relevant to the latest message:")
			for _, f := range rel {
				fmt.Fprintf(&b, "\n- %s: %s", f.Kind, f.Value)
			}
		}
	}
	return b.String()
}

func (s *Scheduler) handleTaskEvent(ev notify.Event) {
	if s.inflight != nil && ev.TaskID == s.inflight.ID {
		s.handleTurnEvent(ev)
		return
	}
	if h, ok := s.outOfBand[ev.TaskID]; ok {
		delete(s.outOfBand, ev.TaskID)
		s.handleOutOfBandEvent(h, ev)
		return
	}
	// Late result of a handle the run already walked away from.
	s.logger.Debug("discarding event for unknown task", "task_id", ev.TaskID, "kind", ev.Kind.String())
}

func (s *Scheduler) handleTurnEvent(ev notify.Event) {
	switch ev.Kind {
	case notify.KindTaskDone:
		s.handleTurnResult(ev.Text)
	case notify.KindTaskCancelled:
		// Stop already ended the run; the result was withheld upstream.
		s.inflight = nil
	case notify.KindTaskFailed:
		s.inflight = nil
		speaker := s.agents[s.next]
		s.logger.Warn("turn failed", "agent", speaker.Name, "error", ev.Err)
		s.publish(notify.Event{Kind: notify.KindTurnFailed, AgentID: speaker.ID, Sender: speaker.Name, Err: ev.Err})
		note := fmt.Sprintf("conversation halted: %s did not reply (%v)", speaker.Name, ev.Err)
		s.publish(notify.Event{Kind: notify.KindSystemNote, Text: note})
		s.saveEntry(&store.TranscriptEntry{Role: inference.RoleSystem, Sender: "system", Content: note})
		s.endRun("turn failed")
	}
}

// handleTurnResult cleans the raw reply and either finalizes the turn or
// issues the single continuation attempt.
func (s *Scheduler) handleTurnResult(raw string) {
	cleaned := reply.DedupeSentences(reply.Clean(raw))

	if s.continued {
		combined := strings.TrimSpace(s.partial + " " + cleaned)
		s.applyReply(reply.DedupeSentences(combined))
		return
	}

	_, wouldTruncate := reply.Process(cleaned, s.settings.MaxChars)
	if reply.NeedsContinuation(cleaned, wouldTruncate) {
		speaker := s.agents[s.next]
		s.logger.Debug("reply looks unfinished, asking for continuation", "agent", speaker.Name)
		s.continued = true
		s.partial = cleaned
		msgs := append(slices.Clone(s.turnMsgs),
			inference.Message{Role: inference.RoleAssistant, Content: cleaned},
			inference.Message{Role: inference.RoleUser, Content: reply.ContinuationPrompt},
		)
		s.inflight = s.disp.Spawn(task.KindAgentCall, speaker.ID, func(ctx context.Context, _ *task.Handle) (string, error) {
			return speaker.Client.Complete(ctx, msgs, speaker.Options)
		})
		return
	}

	s.applyReply(cleaned)
}

// applyReply commits a finished reply to both histories and advances or
// finishes the run.
func (s *Scheduler) applyReply(text string) {
	s.inflight = nil

	if s.settings.ShortTurn {
		text = reply.FirstSentence(text)
	}
	text, truncated := reply.Process(text, s.settings.MaxChars)
	if text == "" {
		text = "..."
	}

	speaker := s.agents[s.next]
	other := 1 - s.next
	s.histories[s.next] = append(s.histories[s.next], inference.Message{Role: inference.RoleAssistant, Content: text})
	s.histories[other] = append(s.histories[other], inference.Message{Role: inference.RoleUser, Content: text})
	s.replies++

	s.logger.Debug("reply applied",
		"agent", speaker.Name,
		"reply_no", s.replies,
		"chars", len(text),
		"truncated", truncated,
	)
	s.publish(notify.Event{Kind: notify.KindAgentReply, AgentID: speaker.ID, Sender: speaker.Name, Text: text})
	s.saveEntry(&store.TranscriptEntry{
		Role:    inference.RoleAssistant,
		Sender:  speaker.Name,
		AgentID: speaker.ID,
		Content: text,
	})

	if s.replies >= s.settings.Turns {
		s.endRun("turn budget reached")
		return
	}

	s.next = other
	delay := s.settings.Delay
	if delay < 0 {
		delay = 0
	}
	s.delayTimer = time.NewTimer(delay)
}

// endRun returns the scheduler to idle. The in-flight call, if any, is
// cancelled; its late result will not be applied.
func (s *Scheduler) endRun(reason string) {
	if s.inflight != nil {
		s.disp.Cancel(s.inflight)
		s.inflight = nil
	}
	if s.delayTimer != nil {
		s.delayTimer.Stop()
		s.delayTimer = nil
	}
	s.pending = nil
	s.setState(StateIdle)
	s.logger.Info("conversation finished", "session_id", s.sessionID, "reason", reason, "replies", s.replies)
	s.publish(notify.Event{Kind: notify.KindRunFinished, Text: reason})
}

func (s *Scheduler) agentByID(id string) *Agent {
	for _, a := range s.agents {
		if a.ID == id || strings.EqualFold(a.Name, id) {
			return a
		}
	}
	return nil
}

// spawnAsk runs a one-off question concurrently with the conversation.
func (s *Scheduler) spawnAsk(agentID, text string) {
	agent := s.agentByID(agentID)
	if agent == nil {
		s.publish(notify.Event{Kind: notify.KindStatus, Text: fmt.Sprintf("unknown agent %q", agentID)})
		return
	}

	system := fmt.Sprintf("You are %s. Answer the question directly and concisely.", agent.Name)
	if agent.Persona != "" {
		system += " Persona: " + agent.Persona
	}
	msgs := []inference.Message{
		{Role: inference.RoleSystem, Content: system},
		{Role: inference.RoleUser, Content: text},
	}

	s.saveEntry(&store.TranscriptEntry{Role: inference.RoleUser, Sender: "observer", Content: text, OutOfBand: true})
	h := s.disp.Spawn(task.KindSingleAsk, agent.ID, func(ctx context.Context, _ *task.Handle) (string, error) {
		return agent.Client.Complete(ctx, msgs, agent.Options)
	})
	s.outOfBand[h.ID] = h
}

func (s *Scheduler) spawnModels() {
	if s.deps.Admin == nil {
		s.publish(notify.Event{Kind: notify.KindStatus, Text: "model administration unavailable"})
		return
	}
	admin := s.deps.Admin
	h := s.disp.Spawn(task.KindModelList, "", func(ctx context.Context, _ *task.Handle) (string, error) {
		models, err := admin.ListModels(ctx)
		if err != nil {
			return "", err
		}
		return strings.Join(models, "\n"), nil
	})
	s.outOfBand[h.ID] = h
}

func (s *Scheduler) spawnPull(model string) {
	if s.deps.Admin == nil {
		s.publish(notify.Event{Kind: notify.KindStatus, Text: "model administration unavailable"})
		return
	}
	admin := s.deps.Admin
	h := s.disp.Spawn(task.KindModelPull, "", func(ctx context.Context, _ *task.Handle) (string, error) {
		err := admin.Pull(ctx, model, func(p inference.PullProgress) {
			// The broadcaster is safe off the loop; progress never touches
			// session state.
			s.publish(notify.Event{Kind: notify.KindPullProgress, Text: progressLine(model, p)})
		})
		if err != nil {
			return "", err
		}
		return model, nil
	})
	s.outOfBand[h.ID] = h
}

func (s *Scheduler) spawnRemove(model string) {
	if s.deps.Admin == nil {
		s.publish(notify.Event{Kind: notify.KindStatus, Text: "model administration unavailable"})
		return
	}
	admin := s.deps.Admin
	h := s.disp.Spawn(task.KindModelRemove, "", func(ctx context.Context, _ *task.Handle) (string, error) {
		if err := admin.Remove(ctx, model); err != nil {
			return "", err
		}
		return model, nil
	})
	s.outOfBand[h.ID] = h
}

// progressLine formats one pull progress update for display.
func progressLine(model string, p inference.PullProgress) string {
	if pct := p.Percent(); pct >= 0 {
		return fmt.Sprintf("%s: %s %.0f%%", model, p.Status, pct)
	}
	return fmt.Sprintf("%s: %s", model, p.Status)
}

func (s *Scheduler) handleOutOfBandEvent(h *task.Handle, ev notify.Event) {
	if ev.Kind == notify.KindTaskCancelled {
		return
	}
	if ev.Kind == notify.KindTaskFailed {
		s.logger.Warn("background task failed", "kind", string(h.Kind), "error", ev.Err)
		s.publish(notify.Event{Kind: notify.KindTaskFailed, TaskID: ev.TaskID, AgentID: ev.AgentID, Err: ev.Err})
		return
	}

	switch h.Kind {
	case task.KindSingleAsk:
		agent := s.agentByID(ev.AgentID)
		name := ev.AgentID
		if agent != nil {
			name = agent.Name
		}
		text := reply.DedupeSentences(reply.Clean(ev.Text))
		s.publish(notify.Event{Kind: notify.KindAgentReply, TaskID: ev.TaskID, AgentID: ev.AgentID, Sender: name, Text: text})
		s.saveEntry(&store.TranscriptEntry{Role: inference.RoleAssistant, Sender: name, AgentID: ev.AgentID, Content: text, OutOfBand: true})
	case task.KindModelList:
		var models []string
		if ev.Text != "" {
			models = strings.Split(ev.Text, "\n")
		}
		s.publish(notify.Event{Kind: notify.KindModels, Models: models})
	case task.KindModelPull:
		s.publish(notify.Event{Kind: notify.KindStatus, Text: fmt.Sprintf("pull complete: %s", ev.Text)})
	case task.KindModelRemove:
		s.publish(notify.Event{Kind: notify.KindStatus, Text: fmt.Sprintf("model removed: %s", ev.Text)})
	}
}

// recordFacts extracts and persists self-disclosures from observer text.
func (s *Scheduler) recordFacts(text string) {
	if s.deps.Facts == nil {
		return
	}
	for _, f := range memory.Extract(text, s.replies) {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := s.deps.Facts.Record(ctx, f)
		cancel()
		if err != nil {
			s.logger.Error("failed to record fact", "kind", string(f.Kind), "error", err)
			continue
		}
		s.logger.Debug("fact recorded", "kind", string(f.Kind), "value", f.Value)
		s.publish(notify.Event{Kind: notify.KindStatus, Text: fmt.Sprintf("noted %s: %s", f.Kind, f.Value)})
	}
}

// saveEntry persists a transcript entry with its own timeout context so
// persistence survives command context cancellation.
func (s *Scheduler) saveEntry(entry *store.TranscriptEntry) {
	if s.deps.Store == nil {
		return
	}
	entry.ID = uuid.New().String()
	entry.SessionID = s.sessionID
	entry.Turn = s.replies
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.deps.Store.SaveTranscriptEntry(ctx, entry); err != nil {
		s.logger.Error("failed to save transcript entry", "entry_id", entry.ID, "error", err)
	}
}

// publish fans an update out to subscribers.
func (s *Scheduler) publish(ev notify.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.updates.Publish(ev)
}
