package tools

// Result is the unified return type from tool execution. ForLLM is fed back
// to the model as the "tool" message for the call.
type Result struct {
	Tool    string `json:"tool"`
	ForLLM  string `json:"for_llm"`
	IsError bool   `json:"is_error"`

	// Set only by flag_for_admin.
	FlaggedForAdmin bool   `json:"flagged_for_admin,omitempty"`
	FlagReason      string `json:"flag_reason,omitempty"`
	Urgency         string `json:"urgency,omitempty"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func FlagResult(forLLM, reason, urgency string) *Result {
	return &Result{ForLLM: forLLM, FlaggedForAdmin: true, FlagReason: reason, Urgency: urgency}
}
