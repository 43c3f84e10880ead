package persona

// Persona captures the identity of the main conversation partner.
type Persona struct {
	ID          string   `json:"id"`
	Name        string   `json:"aiName"`
	Role        string   `json:"role"`
	Traits      []string `json:"traits,omitempty"`
	Context     string   `json:"context,omitempty"`
	VoiceID     string   `json:"voiceId,omitempty"`
	OpeningLine string   `json:"openingLine,omitempty"` // 会话创建失败时的兜底问候语
}

// Scenario is a roleplay configuration served by the scenario catalog.
type Scenario struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	AIName      string   `json:"aiName,omitempty"`
	AIRole      string   `json:"aiRole"`
	UserRole    string   `json:"userRole"`
	Objectives  []string `json:"objectives,omitempty"`
	Context     string   `json:"context,omitempty"`
	Level       string   `json:"level,omitempty"`
	Greeting    string   `json:"greeting,omitempty"`
}

// CustomScenario is a user-authored roleplay that has no catalog id.
type CustomScenario struct {
	AIName     string   `json:"aiName"`
	Role       string   `json:"role"`
	Traits     []string `json:"traits,omitempty"`
	Context    string   `json:"context"`
	UserRole   string   `json:"userRole"`
	Objectives []string `json:"objectives,omitempty"`
}

// ScenarioOption is one entry of the role picker.
type ScenarioOption struct {
	Role  string `json:"role"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// MainAssistant provides the default tutor persona used by the main chat.
func MainAssistant() Persona {
	return Persona{
		ID:          "main-assistant",
		Name:        "Mia",
		Role:        "friendly English conversation partner",
		Traits:      []string{"patient", "curious", "encouraging", "playful"},
		Context:     "Chat casually with a language learner, keep replies short and ask follow-up questions.",
		VoiceID:     "en_female_default",
		OpeningLine: "Hi there! I'm Mia. What would you like to talk about today?",
	}
}

// Seed provides the scenario catalog shipped with the dev backend.
func Seed() []Scenario {
	return []Scenario{
		{
			ID:          "coffee-shop",
			Title:       "Ordering at a coffee shop",
			Description: "Order a drink and a snack, and ask about the menu.",
			AIName:      "Sam",
			AIRole:      "barista",
			UserRole:    "customer",
			Objectives:  []string{"Order a drink", "Ask for a recommendation", "Pay for your order"},
			Context:     "A busy coffee shop on a Monday morning.",
			Level:       "beginner",
			Greeting:    "Good morning! What can I get started for you today?",
		},
		{
			ID:          "job-interview",
			Title:       "Job interview",
			Description: "Answer common interview questions for an office job.",
			AIName:      "Ms. Carter",
			AIRole:      "interviewer",
			UserRole:    "candidate",
			Objectives:  []string{"Introduce yourself", "Describe a strength", "Ask a question about the role"},
			Context:     "A video interview for a junior project coordinator role.",
			Level:       "intermediate",
			Greeting:    "Thanks for joining today. Could you start by telling me a little about yourself?",
		},
		{
			ID:          "hotel-checkin",
			Title:       "Checking in at a hotel",
			Description: "Check in, ask about breakfast and request a late checkout.",
			AIName:      "Leo",
			AIRole:      "receptionist",
			UserRole:    "guest",
			Objectives:  []string{"Give your reservation name", "Ask about breakfast", "Request a late checkout"},
			Context:     "The front desk of a city hotel in the evening.",
			Level:       "beginner",
			Greeting:    "Welcome to the Riverside Hotel! Do you have a reservation with us?",
		},
	}
}
