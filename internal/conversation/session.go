// ABOUTME: Session types for a two-agent conversation run
// ABOUTME: Agents, scheduler settings, and system prompt construction

package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/parley-sh/parley/internal/inference"
)

// State is the scheduler's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

// String returns a short name for the state, used in logs and status lines.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Completer is the slice of the inference client the scheduler needs.
// Tests substitute fakes; production passes *inference.Client.
type Completer interface {
	Complete(ctx context.Context, history []inference.Message, opts inference.Options) (string, error)
}

// Agent is one conversation participant.
type Agent struct {
	ID      string // stable identifier ("a", "b")
	Name    string // display name used in prompts and transcripts
	Client  Completer
	Persona string // persona line appended to the system prompt, may be empty
	Options inference.Options
}

// Settings are the scheduler knobs for one run.
type Settings struct {
	Topic     string
	Turns     int // reply budget for a run; each agent reply consumes one
	Delay     time.Duration
	MaxChars  int // 0 disables truncation
	ShortTurn bool
	Humanize  bool
	Greeting  string // opening line; defaulted per Humanize when empty
}

// humanizeInstruction is appended to both system prompts in humanize mode.
const humanizeInstruction = "Speak like a friendly human: keep replies short, natural, " +
	"use contractions and greetings, and occasionally use small talk. " +
	"Follow the example exchange: \nAgent_B: 'Hello, how are you?'\nAgent_A: 'I'm very well, thank you.'"

// systemPrompt builds an agent's system prompt from the run settings.
func systemPrompt(a *Agent, other *Agent, s Settings) string {
	prompt := fmt.Sprintf("You are %s. You are discussing the topic: '%s' with %s. Be concise and engaging.",
		a.Name, s.Topic, other.Name)
	if a.Persona != "" {
		prompt += " Persona: " + a.Persona
	}
	if s.Humanize {
		prompt += " " + humanizeInstruction
	}
	return prompt
}

// defaultGreeting is the opening line when the caller supplies none.
func defaultGreeting(s Settings) string {
	if s.Greeting != "" {
		return s.Greeting
	}
	if s.Humanize {
		return "Hello, how are you?"
	}
	return fmt.Sprintf("Let's discuss %s. I think...", s.Topic)
}

// injection is one observer message queued for the next turn boundary.
type injection struct {
	Sender string
	Text   string
}
