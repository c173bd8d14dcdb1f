package api

import "github.com/wholesale-bot/resolver/pkg/pipeline"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// PipelineRunRequest is the body of POST /pipeline/run.
type PipelineRunRequest struct {
	ChatID string `json:"chat_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
	UserID *int64 `json:"user_id,omitempty"`
	Trace  bool   `json:"trace,omitempty"`
}

// PipelineRunResponse wraps the dialog handler's reply for the debug route.
type PipelineRunResponse struct {
	Intents           []string          `json:"intents"`
	State             string            `json:"state"`
	NeedClarification bool              `json:"need_clarification"`
	Items             []pipeline.Result `json:"items"`
}
