package model

// ErrorInfo holds structured failure information for a workflow phase.
type ErrorInfo struct {
	Phase      string `json:"phase"`
	FailedStep string `json:"failed_step"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	FailedAt   string `json:"failed_at"`
}
