package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/kothalabs/kotha/pkg/language"
)

// Phonetic fallback acceptance bar for Jaro-Winkler similarity.
const phoneticJWThreshold = 0.85

// Match confidences for the literal trigger tiers.
const (
	exactConfidence     = 1.0
	substringConfidence = 0.9
)

// Handler executes a matched command. Handlers run synchronously on the
// caller's goroutine.
type Handler func(ctx context.Context, res Result) error

// Matcher owns the command registry and the action handler table. All
// methods are safe for concurrent use; matching never mutates state, so
// text-path calls may run concurrently with registry updates.
type Matcher struct {
	mu       sync.RWMutex
	cfg      Config
	order    []string
	commands map[string]Command
	handlers map[Action]Handler
}

// New creates a Matcher with the given config completed by defaults.
func New(cfg Config) *Matcher {
	return &Matcher{
		cfg:      cfg.withDefaults(),
		commands: make(map[string]Command),
		handlers: make(map[Action]Handler),
	}
}

// Config returns a snapshot of the current configuration.
func (m *Matcher) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// UpdateConfig replaces the matcher configuration.
func (m *Matcher) UpdateConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg.withDefaults()
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

// Register adds a command. The command must carry a non-empty ID, a valid
// action, and either a pattern or a literal trigger. Returns
// [ErrDuplicateID] when the ID is taken and [ErrUnknownAction] for actions
// outside the enum.
func (m *Matcher) Register(cmd Command) error {
	if cmd.ID == "" {
		return fmt.Errorf("command: register: ID must not be empty")
	}
	if !cmd.Action.IsValid() {
		return fmt.Errorf("command: register %q: action %q: %w", cmd.ID, cmd.Action, ErrUnknownAction)
	}
	if cmd.Pattern == nil && strings.TrimSpace(cmd.Trigger) == "" {
		return fmt.Errorf("command: register %q: needs a pattern or a trigger", cmd.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.commands[cmd.ID]; exists {
		return fmt.Errorf("command: register %q: %w", cmd.ID, ErrDuplicateID)
	}
	m.commands[cmd.ID] = cmd
	m.order = append(m.order, cmd.ID)
	return nil
}

// Unregister removes a command by ID.
func (m *Matcher) Unregister(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commands[id]; !ok {
		return fmt.Errorf("command: unregister %q: %w", id, ErrNotFound)
	}
	delete(m.commands, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetEnabled flips a command's disabled flag without removing it.
func (m *Matcher) SetEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd, ok := m.commands[id]
	if !ok {
		return fmt.Errorf("command: enable %q: %w", id, ErrNotFound)
	}
	cmd.Disabled = !enabled
	m.commands[id] = cmd
	return nil
}

// Commands returns all registered commands in registration order.
func (m *Matcher) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Command, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.commands[id])
	}
	return result
}

// Handle installs the handler for an action, replacing any previous one.
func (m *Matcher) Handle(action Action, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[action] = fn
}

// Dispatch routes a match result through the handler table. Results whose
// action has no installed handler are ignored with a debug log; the
// registry stays open to commands the caller dispatches itself.
func (m *Matcher) Dispatch(ctx context.Context, res Result) error {
	m.mu.RLock()
	fn := m.handlers[res.Command.Action]
	m.mu.RUnlock()

	if fn == nil {
		slog.Debug("command: no handler installed", "action", res.Command.Action, "command", res.Command.ID)
		return nil
	}
	if err := fn(ctx, res); err != nil {
		return fmt.Errorf("command: %s: %w", res.Command.Action, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Matching
// ─────────────────────────────────────────────────────────────────────────────

// Match finds the best command for text in the given language. It returns
// nil — never an error — when no command reaches the confidence threshold,
// when text is empty, or when every candidate is disabled or filtered out
// by language. Ties between equal confidences go to the earliest
// registered command.
func (m *Matcher) Match(text string, lang language.Tag) *Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Result
	for _, id := range m.order {
		cmd := m.commands[id]
		if cmd.Disabled || !cmd.matchesLanguage(lang) {
			continue
		}

		confidence, params, ok := m.score(trimmed, cmd)
		if !ok || confidence < m.cfg.ConfidenceThreshold {
			continue
		}
		if best == nil || confidence > best.Confidence {
			best = &Result{
				Command:    cmd,
				Confidence: confidence,
				Parameters: params,
				Text:       text,
			}
		}
	}
	return best
}

// score rates one command against the input. Callers hold m.mu.
func (m *Matcher) score(text string, cmd Command) (confidence float64, params map[string]string, ok bool) {
	params = staticParams(cmd)

	if cmd.Pattern != nil {
		groups := cmd.Pattern.FindStringSubmatch(text)
		if groups == nil {
			return 0, nil, false
		}
		for i, name := range cmd.Pattern.SubexpNames() {
			if i == 0 {
				continue
			}
			if name != "" {
				params[name] = groups[i]
			} else {
				params[fmt.Sprintf("param%d", i-1)] = groups[i]
			}
		}
		return exactConfidence, params, true
	}

	input := strings.ToLower(text)
	trigger := strings.ToLower(strings.TrimSpace(cmd.Trigger))

	switch {
	case input == trigger:
		return exactConfidence, params, true
	case strings.Contains(input, trigger):
		return substringConfidence, params, true
	case m.cfg.DisableFuzzy:
		return 0, nil, false
	}

	// Fuzzy tier: normalized Levenshtein similarity, bounded by the edit
	// distance cap.
	longest := max(len([]rune(input)), len([]rune(trigger)))
	if longest == 0 {
		return 0, nil, false
	}
	if d := matchr.Levenshtein(input, trigger); d <= m.cfg.MaxEditDistance {
		if conf := 1 - float64(d)/float64(longest); conf >= m.cfg.ConfidenceThreshold {
			return conf, params, true
		}
	}

	if m.cfg.EnablePhonetic && phoneticEqual(input, trigger) {
		return m.cfg.ConfidenceThreshold, params, true
	}
	return 0, nil, false
}

// phoneticEqual reports whether two phrases sound alike: matching primary
// Double Metaphone codes or a high Jaro-Winkler similarity.
func phoneticEqual(a, b string) bool {
	pa, sa := matchr.DoubleMetaphone(a)
	pb, sb := matchr.DoubleMetaphone(b)
	if pa != "" && (pa == pb || pa == sb) {
		return true
	}
	if sa != "" && (sa == pb || sa == sb) {
		return true
	}
	return matchr.JaroWinkler(a, b, false) >= phoneticJWThreshold
}

func staticParams(cmd Command) map[string]string {
	params := make(map[string]string, len(cmd.Parameters))
	for i, v := range cmd.Parameters {
		params[fmt.Sprintf("param%d", i)] = v
	}
	return params
}
