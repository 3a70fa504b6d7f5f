package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mailgoal/mailgoal/internal/markdown"
)

var ErrNoBackend = errors.New("no generative backend configured")

const defaultTimeout = 30 * time.Second

// Backend turns a prompt into free text. Implementations are unreliable by
// nature: they time out, rate limit and return malformed output.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Generator writes reminders with a Backend and falls back to the static
// persona templates when the backend cannot produce usable content.
type Generator struct {
	backend   Backend
	md        *markdown.Parser
	timeout   time.Duration
	signature string
}

type Option func(*Generator)

// WithTimeout bounds a single backend call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithSignature sets the name reminders are signed with.
func WithSignature(signature string) Option {
	return func(g *Generator) {
		if signature != "" {
			g.signature = signature
		}
	}
}

func NewGenerator(backend Backend, opts ...Option) *Generator {
	g := &Generator{
		backend:   backend,
		md:        markdown.NewParser(),
		timeout:   defaultTimeout,
		signature: "The MailGoal Team",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate never fails. Backend errors are logged and answered with Fallback.
func (g *Generator) Generate(ctx context.Context, snap Snapshot) Content {
	c, err := g.Primary(ctx, snap)
	if err != nil {
		slog.Warn("content generation failed, using fallback template",
			"goal_id", snap.GoalID,
			"tone", snap.Tone,
			"error", err,
		)
		return g.Fallback(snap)
	}
	return c
}

// Primary asks the backend for a reminder and parses its answer.
func (g *Generator) Primary(ctx context.Context, snap Snapshot) (Content, error) {
	if g.backend == nil {
		return Content{}, ErrNoBackend
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.backend.Generate(ctx, g.Prompt(snap))
	if err != nil {
		return Content{}, fmt.Errorf("generate: %w", err)
	}

	c, err := g.parse(raw)
	if err != nil {
		return Content{}, err
	}

	return c, nil
}

// Enabled reports whether a generative backend is configured. When it is not,
// every reminder comes from Fallback and no external call is made.
func (g *Generator) Enabled() bool {
	if g.backend == nil {
		return false
	}
	_, nop := g.backend.(NopBackend)
	return !nop
}

// Fallback is pure and safe to call inline.
func (g *Generator) Fallback(snap Snapshot) Content {
	return Fallback(snap, g.signature)
}

func (g *Generator) Prompt(snap Snapshot) string {
	persona := PersonaFor(snap.Tone)
	timeContext := snap.TimeContext()

	var b strings.Builder
	fmt.Fprintf(&b, "Write a short motivational email reminding someone about their goal.\n\n")
	fmt.Fprintf(&b, "Name: %s\n", snap.Name)
	fmt.Fprintf(&b, "Goal: %s\n", snap.Goal)
	fmt.Fprintf(&b, "Time context: %s\n", timeContext)
	fmt.Fprintf(&b, "Reminder frequency: %s\n\n", snap.Frequency)
	fmt.Fprintf(&b, "Style:\n")
	fmt.Fprintf(&b, "- Write in the voice of %s.\n", persona.Voice)
	fmt.Fprintf(&b, "- Greeting, two or three short paragraphs, sign-off. 150 to 200 words.\n")
	fmt.Fprintf(&b, "- Refer to the goal \"%s\" and to the fact that %s.\n", snap.Goal, timeContext)
	fmt.Fprintf(&b, "- Include one or two concrete, actionable tips for this goal.\n")
	fmt.Fprintf(&b, "- Sign off as \"%s\".\n", g.signature)
	fmt.Fprintf(&b, "- Never use placeholders like [Name] or [Goal].\n\n")
	fmt.Fprintf(&b, "Format:\n")
	fmt.Fprintf(&b, "- First line: \"Subject: <subject line under 80 characters>\".\n")
	fmt.Fprintf(&b, "- Then a blank line and the body in plain Markdown. No HTML, no code fences.\n")

	return b.String()
}
