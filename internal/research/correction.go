package research

import "strings"

// Action tells the orchestrator how to proceed after a failed run.
type Action int

const (
	// ActionRetryWithCorrection posts a corrective user message, then retries.
	ActionRetryWithCorrection Action = iota
	// ActionRetryVerbatim retries the run without posting anything.
	ActionRetryVerbatim
	// ActionFail aborts the session, surfacing the error.
	ActionFail
)

// Classification is the correction engine's verdict on a failed run.
type Classification struct {
	Action     Action
	Correction string
}

// Corrective messages steering the agent back to a well-formed tool call.
const (
	correctionWrongParams = "You previously failed to call the deep_research tool because you provided the wrong number of parameters. Please try again, and ONLY use the 'title' and 'prompt' parameters for the tool call. Make sure the parameter values are properly formatted strings without special characters."

	correctionParseError = "You previously failed to call the deep_research tool due to a parsing error. " +
		"Please ensure you:\n" +
		"1. Only use 'title' and 'prompt' parameters\n" +
		"2. Properly format all parameter values as strings\n" +
		"3. Avoid special characters like unmatched parentheses, quotes, or brackets\n" +
		"4. Use simple, clean text for both title and prompt\n" +
		"Please try calling the tool again with corrected formatting."

	correctionToolGeneric = "There was an error with the deep_research tool. Please try again with:\n" +
		"- Only 'title' and 'prompt' parameters\n" +
		"- Simple, clean text without special formatting\n" +
		"- Proper string formatting"
)

// rules map failure signatures to actions. Checked in order, first match
// wins; anything unmatched is fatal.
var rules = []struct {
	match  func(code, message string) bool
	result Classification
}{
	{
		match: func(code, message string) bool {
			return code == "tool_server_error" && strings.Contains(message, "too many values to unpack")
		},
		result: Classification{Action: ActionRetryWithCorrection, Correction: correctionWrongParams},
	},
	{
		match: func(code, message string) bool {
			return code == "tool_server_error" &&
				(strings.Contains(message, "could not be parsed") || strings.Contains(message, "unmatched"))
		},
		result: Classification{Action: ActionRetryWithCorrection, Correction: correctionParseError},
	},
	{
		match: func(code, message string) bool {
			return code == "tool_server_error"
		},
		result: Classification{Action: ActionRetryWithCorrection, Correction: correctionToolGeneric},
	},
	{
		match: func(code, message string) bool {
			return code == "server_error" && strings.Contains(message, "Sorry, something went wrong")
		},
		result: Classification{Action: ActionRetryVerbatim},
	},
}

// Classify maps a failed run's error code and message to a retry decision.
func Classify(code, message string) Classification {
	for _, r := range rules {
		if r.match(code, message) {
			return r.result
		}
	}
	return Classification{Action: ActionFail}
}
