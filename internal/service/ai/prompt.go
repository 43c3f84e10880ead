package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/speakeasy/internal/model/persona"
)

// PromptTemplate 描述某个场景的额外角色提示
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PromptManager builds tutor system prompts, with hand-tuned templates for
// the seeded scenarios and a generic prompt for everything else.
type PromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPromptManager creates a manager with the default templates loaded.
func NewPromptManager() *PromptManager {
	pm := &PromptManager{templates: make(map[string]*PromptTemplate)}
	pm.loadDefaultTemplates()
	return pm
}

// GetPromptTemplate returns the template for a scenario id.
func (pm *PromptManager) GetPromptTemplate(scenarioID string) (*PromptTemplate, error) {
	template, ok := pm.templates[scenarioID]
	if !ok {
		return nil, fmt.Errorf("prompt template not found for scenario: %s", scenarioID)
	}
	return template, nil
}

// AssistantPrompt is the system prompt for the main tutor persona.
func (pm *PromptManager) AssistantPrompt(p persona.Persona) string {
	return fmt.Sprintf(`You are %s, a %s.

Personality: %s
%s

Keep every reply to one to three short sentences and finish with a question
that keeps the learner talking.

%s`,
		p.Name,
		p.Role,
		strings.Join(p.Traits, ", "),
		p.Context,
		feedbackInstructions,
	)
}

// ScenarioPrompt is the system prompt for a roleplay.
func (pm *PromptManager) ScenarioPrompt(s persona.Scenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are playing %s in a roleplay titled %q.\n", nonEmpty(s.AIName, "the other character"), s.Title)
	fmt.Fprintf(&b, "Your role: %s. The learner plays: %s.\n", s.AIRole, s.UserRole)
	if s.Context != "" {
		fmt.Fprintf(&b, "Setting: %s\n", s.Context)
	}
	if len(s.Objectives) > 0 {
		b.WriteString("The learner is trying to:\n- ")
		b.WriteString(strings.Join(s.Objectives, "\n- "))
		b.WriteString("\n")
	}

	if template, err := pm.GetPromptTemplate(s.ID); err == nil {
		b.WriteString("\n")
		b.WriteString(template.SystemPrompt)
		if len(template.PersonalityHints) > 0 {
			b.WriteString("\nStay in character:\n- ")
			b.WriteString(strings.Join(template.PersonalityHints, "\n- "))
		}
		if len(template.ContextRules) > 0 {
			b.WriteString("\nRules:\n- ")
			b.WriteString(strings.Join(template.ContextRules, "\n- "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nNever break character in the reply itself.\n\n")
	b.WriteString(feedbackInstructions)
	return b.String()
}

const feedbackInstructions = `Also review the learner's LAST message. Respond with JSON only, shaped as:
{"reply": "<your reply>", "feedback": {"correctedVersion": "<the learner's message, corrected>", "explanation": "<one sentence>", "feedbackType": "NONE|GRAMMAR|VOCABULARY|SPELLING|STYLE", "isCorrect": true|false}}
Use feedbackType NONE and isCorrect true when nothing needs fixing.`

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// loadDefaultTemplates 加载内置场景模板
func (pm *PromptManager) loadDefaultTemplates() {
	pm.templates["coffee-shop"] = &PromptTemplate{
		SystemPrompt: "You are a cheerful barista during a busy morning rush.",
		PersonalityHints: []string{
			"Suggest drinks and pastries from a small menu",
			"Ask about size, milk and whether it's for here or to go",
		},
		ContextRules: []string{
			"If the learner hesitates, offer two simple choices",
			"Close the order by telling them the total price",
		},
	}

	pm.templates["job-interview"] = &PromptTemplate{
		SystemPrompt: "You are a friendly but professional hiring manager interviewing a candidate.",
		PersonalityHints: []string{
			"Ask one interview question at a time",
			"Follow up on vague answers by asking for a concrete example",
		},
		ContextRules: []string{
			"Cover experience, strengths and a situation the candidate handled",
			"End by inviting the candidate to ask you a question",
		},
	}

	pm.templates["hotel-checkin"] = &PromptTemplate{
		SystemPrompt: "You are a polite front-desk receptionist at a city hotel.",
		PersonalityHints: []string{
			"Confirm the name on the reservation and the number of nights",
			"Mention breakfast hours and the Wi-Fi password",
		},
		ContextRules: []string{
			"If the learner has a complaint, apologize and offer a solution",
		},
	}
}
