package flow

// Instructional preambles prepended to user payloads before generation.
// None of these grant real capability: structured output, code execution, URL
// analysis, and search all rely on the downstream model following the
// instruction text.
const (
	imagePreamble = "Look at the attached image and respond to the request below. " +
		"Describe what is relevant to the request rather than everything visible."

	voicePreamble = "The user sent a voice message. Speech-to-text is not available, " +
		"so respond based on the caption below."

	structuredPreamble = "Respond with a single JSON object containing exactly these fields: %s. " +
		"Do not include any text outside the JSON object."

	codePreamble = "Act as a code interpreter. Execute the following code mentally and " +
		"reply with the exact output it would produce, followed by a short explanation."

	urlPreamble = "Analyze the page at the URL below and answer the request that follows. " +
		"If the content is not known to you, say so explicitly."

	searchPreamble = "Act as a web search assistant. Answer the request below for the " +
		"given query, citing what you know and flagging anything that may be outdated."
)

// Default prompts substituted when the optional second input line is absent.
const (
	defaultURLPrompt    = "Analyze the content of this URL."
	defaultSearchPrompt = "Summarize the most relevant results for this query."
)
