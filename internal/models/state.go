package models

// StateType identifies which single-shot action the next user payload is routed to.
type StateType string

const (
	// StateMainMenu is the initial state with no action selected.
	StateMainMenu StateType = "MAIN_MENU"
	// StateAwaitingText expects a free-text prompt.
	StateAwaitingText StateType = "AWAITING_TEXT"
	// StateAwaitingImage expects an image attachment with an optional caption.
	StateAwaitingImage StateType = "AWAITING_IMAGE"
	// StateAwaitingVoice expects a voice attachment with an optional caption.
	StateAwaitingVoice StateType = "AWAITING_VOICE"
	// StateAwaitingStructuredPrompt expects a prompt line followed by a JSON object.
	StateAwaitingStructuredPrompt StateType = "AWAITING_STRUCTURED_PROMPT"
	// StateAwaitingCode expects source code to run through the code preamble.
	StateAwaitingCode StateType = "AWAITING_CODE"
	// StateAwaitingURL expects a URL line with an optional prompt line.
	StateAwaitingURL StateType = "AWAITING_URL"
	// StateAwaitingSearchQuery expects a search query with an optional prompt line.
	StateAwaitingSearchQuery StateType = "AWAITING_SEARCH_QUERY"
)

// IsValidState reports whether the given state is part of the menu enumeration.
func IsValidState(s StateType) bool {
	switch s {
	case StateMainMenu, StateAwaitingText, StateAwaitingImage, StateAwaitingVoice,
		StateAwaitingStructuredPrompt, StateAwaitingCode, StateAwaitingURL, StateAwaitingSearchQuery:
		return true
	default:
		return false
	}
}

// Button identifiers carried as opaque payloads of button-press events.
const (
	ButtonTextGeneration     = "text_generation"
	ButtonImageUnderstanding = "image_understanding"
	ButtonVoiceProcessing    = "voice_processing"
	ButtonStructuredOutput   = "structured_output"
	ButtonExecuteCode        = "execute_code"
	ButtonAnalyzeURL         = "analyze_url"
	ButtonWebSearch          = "web_search"
	ButtonBack               = "back_to_main_menu"
)

// ButtonLabels maps button identifiers to the labels shown on menu keyboards.
var ButtonLabels = map[string]string{
	ButtonTextGeneration:     "Text generation",
	ButtonImageUnderstanding: "Image understanding",
	ButtonVoiceProcessing:    "Voice processing",
	ButtonStructuredOutput:   "Structured output",
	ButtonExecuteCode:        "Execute code",
	ButtonAnalyzeURL:         "Analyze URL",
	ButtonWebSearch:          "Web search",
	ButtonBack:               "⬅️ Back",
}

// MainMenuButtons lists the main-menu buttons in display order.
var MainMenuButtons = []string{
	ButtonTextGeneration,
	ButtonImageUnderstanding,
	ButtonVoiceProcessing,
	ButtonStructuredOutput,
	ButtonExecuteCode,
	ButtonAnalyzeURL,
	ButtonWebSearch,
}
