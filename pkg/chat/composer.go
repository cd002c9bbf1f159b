package chat

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/charla-ai/charla/pkg/model"
)

const (
	// DefaultMaxPromptTokens bounds system instruction + history + utterance.
	// Oldest history turns are dropped first when the budget is exceeded.
	DefaultMaxPromptTokens = 4096

	genericInstruction = "You are a helpful conversational assistant. " +
		"Answer based on the conversation so far and keep your replies brief."

	noContextNote = " Only your general knowledge and the prior turns of this " +
		"conversation are available; no background context could be retrieved."
)

// Composer builds the system instruction and turn list consumed by the
// generation call. History is trimmed oldest-first to a token budget measured
// with a tiktoken codec (rough character estimate when the codec is
// unavailable).
type Composer struct {
	maxPromptTokens int
	codec           tokenizer.Codec
}

func NewComposer(maxPromptTokens int) *Composer {
	if maxPromptTokens <= 0 {
		maxPromptTokens = DefaultMaxPromptTokens
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("tokenizer unavailable, falling back to character estimate")
		codec = nil
	}
	return &Composer{maxPromptTokens: maxPromptTokens, codec: codec}
}

// Compose returns the system instruction and the ordered turns for one
// generation call: the trimmed history window followed by the final user
// turn. When retrieved context is present it is prepended to the final user
// turn as a labeled block; otherwise the system instruction gains a note that
// only general knowledge is available.
func (c *Composer) Compose(persona *model.Persona, history []model.Turn, retrieved, utterance string) (string, []model.Turn) {
	system := c.systemInstruction(persona)

	var userTurn string
	if strings.TrimSpace(retrieved) != "" {
		userTurn = fmt.Sprintf("Relevant context:\n---\n%s\n---\nUser message: %s", retrieved, utterance)
	} else {
		system += noContextNote
		userTurn = utterance
	}

	history = c.trimToBudget(system, history, userTurn)

	turns := make([]model.Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, model.Turn{Role: model.RoleUser, Content: userTurn})
	return system, turns
}

func (c *Composer) systemInstruction(persona *model.Persona) string {
	if persona == nil {
		return genericInstruction
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", persona.Name)
	if persona.Role != "" {
		fmt.Fprintf(&b, ", %s", persona.Role)
	}
	b.WriteString(". ")
	if persona.Biography != "" {
		b.WriteString(persona.Biography)
		if !strings.HasSuffix(persona.Biography, ".") {
			b.WriteString(".")
		}
		b.WriteString(" ")
	}
	if len(persona.KeyTraits) > 0 {
		fmt.Fprintf(&b, "Your key traits: %s. ", strings.Join(persona.KeyTraits, ", "))
	}
	if len(persona.SpeechTics) > 0 {
		fmt.Fprintf(&b, "You often say things like: %s. ", strings.Join(persona.SpeechTics, "; "))
	}
	fmt.Fprintf(&b, "Stay strictly in character as %s at all times. ", persona.Name)
	b.WriteString("Prefer the relevant context block, when present, for factual claims " +
		"about your background. Keep your replies brief.")
	return b.String()
}

// trimToBudget drops oldest history turns until the whole prompt fits the
// token budget. The final user turn and the system instruction are never
// dropped.
func (c *Composer) trimToBudget(system string, history []model.Turn, userTurn string) []model.Turn {
	fixed := c.countTokens(system) + c.countTokens(userTurn)
	budget := c.maxPromptTokens - fixed
	total := 0
	counts := make([]int, len(history))
	for i, t := range history {
		counts[i] = c.countTokens(t.Content)
		total += counts[i]
	}
	dropped := 0
	for total > budget && dropped < len(history) {
		total -= counts[dropped]
		dropped++
	}
	if dropped > 0 {
		log.Debug().Int("dropped_turns", dropped).Int("budget", c.maxPromptTokens).
			Msg("history trimmed to prompt token budget")
	}
	return history[dropped:]
}

func (c *Composer) countTokens(s string) int {
	if c.codec != nil {
		if ids, _, err := c.codec.Encode(s); err == nil {
			return len(ids)
		}
	}
	// 4 chars per token is the usual rough estimate.
	return len(s)/4 + 1
}
