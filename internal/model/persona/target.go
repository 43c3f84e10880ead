package persona

import (
	"errors"
	"strings"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
)

// Kind discriminates the two conversation targets.
type Kind string

const (
	KindAssistant Kind = "assistant"
	KindScenario  Kind = "scenario"
)

var ErrInvalidTarget = errors.New("invalid conversation target")

// Target selects who the learner talks to. Exactly one of the variant fields is set.
type Target struct {
	Kind Kind

	// KindAssistant
	Persona *Persona

	// KindScenario: either a catalog scenario id or a custom scenario.
	ScenarioID string
	Details    *Scenario
	Custom     *CustomScenario
}

// AssistantTarget builds the main-assistant variant.
func AssistantTarget(p Persona) Target {
	return Target{Kind: KindAssistant, Persona: &p}
}

// ScenarioTarget builds the catalog-scenario variant. details may be nil.
func ScenarioTarget(id string, details *Scenario) Target {
	return Target{Kind: KindScenario, ScenarioID: id, Details: details}
}

// CustomTarget builds the custom-scenario variant.
func CustomTarget(c CustomScenario) Target {
	return Target{Kind: KindScenario, Custom: &c}
}

// ChatType maps the target to the chat endpoint's mode.
func (t Target) ChatType() chat.ChatType {
	if t.Kind == KindAssistant {
		return chat.ChatTypeMain
	}
	return chat.ChatTypeRoleplay
}

// IsAssistant reports whether this is the main-assistant variant.
func (t Target) IsAssistant() bool {
	return t.Kind == KindAssistant
}

// Validate checks that the variant fields match the kind.
func (t Target) Validate() error {
	switch t.Kind {
	case KindAssistant:
		if t.Persona == nil {
			return ErrInvalidTarget
		}
	case KindScenario:
		if strings.TrimSpace(t.ScenarioID) == "" && t.Custom == nil {
			return ErrInvalidTarget
		}
	default:
		return ErrInvalidTarget
	}
	return nil
}

// Label is a short human-readable title for the conversation.
func (t Target) Label() string {
	switch {
	case t.Kind == KindAssistant && t.Persona != nil:
		return t.Persona.Name
	case t.Details != nil && t.Details.Title != "":
		return t.Details.Title
	case t.Custom != nil:
		return t.Custom.AIName + " (" + t.Custom.Role + ")"
	default:
		return t.ScenarioID
	}
}

// ScenarioDetails is the roleplay description sent with every chat turn.
// Custom scenarios are converted; a catalog scenario whose details were
// never fetched carries only its id. Returns nil for the assistant.
func (t Target) ScenarioDetails() *Scenario {
	switch {
	case t.Kind != KindScenario:
		return nil
	case t.Details != nil:
		d := *t.Details
		d.Objectives = append([]string(nil), t.Details.Objectives...)
		return &d
	case t.Custom != nil:
		return &Scenario{
			Title:      t.Label(),
			AIName:     t.Custom.AIName,
			AIRole:     t.Custom.Role,
			UserRole:   t.Custom.UserRole,
			Context:    t.Custom.Context,
			Objectives: append([]string(nil), t.Custom.Objectives...),
		}
	case t.ScenarioID != "":
		return &Scenario{ID: t.ScenarioID}
	}
	return nil
}
