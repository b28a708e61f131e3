package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskType categorizes what kind of coding-assistant work a request carries.
type TaskType string

const (
	TaskCompletion TaskType = "completion"
	TaskAnalysis   TaskType = "analysis"
	TaskRefactor   TaskType = "refactor"
	TaskDebug      TaskType = "debug"
	TaskGeneric    TaskType = "generic"
)

// SizeClass buckets requests by payload size for routing table lookups.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// Size class boundaries in content bytes.
const (
	smallSizeLimit  = 2 * 1024
	mediumSizeLimit = 32 * 1024
)

// ClassifySize derives the size class from the request content length.
func ClassifySize(contentLen int) SizeClass {
	switch {
	case contentLen <= smallSizeLimit:
		return SizeSmall
	case contentLen <= mediumSizeLimit:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// RequestContext carries optional code metadata attached to a request.
type RequestContext struct {
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// Request is a unit of work submitted to the orchestrator.
// It is immutable after creation; results attach to a separate Response.
type Request struct {
	ID            uuid.UUID
	Content       string
	Context       *RequestContext
	TaskType      TaskType
	SizeClass     SizeClass
	Tier          string
	BudgetCeiling float64 // 0 means no ceiling
	Batchable     bool
	SubmittedAt   time.Time
}

// Language returns the request's language, or empty when no context is attached.
func (r *Request) Language() string {
	if r.Context == nil {
		return ""
	}
	return r.Context.Language
}

// NewRequest builds a Request, deriving size class and batching eligibility.
// Completion and generic tasks are batching-eligible; analysis, refactor and
// debug tasks carry request-specific context that does not merge cleanly.
func NewRequest(content string, reqCtx *RequestContext, task TaskType, tier string, budget float64) *Request {
	if task == "" {
		task = TaskGeneric
	}
	return &Request{
		ID:            uuid.New(),
		Content:       content,
		Context:       reqCtx,
		TaskType:      task,
		SizeClass:     ClassifySize(len(content)),
		Tier:          tier,
		BudgetCeiling: budget,
		Batchable:     task == TaskCompletion || task == TaskGeneric,
		SubmittedAt:   time.Now(),
	}
}

// AttemptOutcome enumerates the result of one provider invocation.
type AttemptOutcome string

const (
	AttemptSuccess  AttemptOutcome = "success"
	AttemptTimeout  AttemptOutcome = "timeout"
	AttemptError    AttemptOutcome = "error"
	AttemptRejected AttemptOutcome = "rejected"
)

// AttemptRecord is the result of one provider invocation for one request.
// A request may accumulate several records during failover.
type AttemptRecord struct {
	ID            uuid.UUID
	RequestID     uuid.UUID
	ProviderID    string
	StartedAt     time.Time
	CompletedAt   time.Time
	Outcome       AttemptOutcome
	Latency       time.Duration
	EstimatedCost float64
	ErrorDetail   string
}

// Succeeded reports whether this attempt produced a usable response.
func (a *AttemptRecord) Succeeded() bool {
	return a.Outcome == AttemptSuccess
}

// Response is the terminal result of a successfully orchestrated request.
type Response struct {
	RequestID   uuid.UUID
	ProviderID  string
	Content     string
	TokensUsed  int
	Latency     time.Duration
	Cost        float64
	Attempts    int
	Batched     bool
	CompletedAt time.Time
}

// RequestOutcome enumerates the terminal state of a request.
type RequestOutcome string

const (
	OutcomeSuccess   RequestOutcome = "success"
	OutcomeExhausted RequestOutcome = "exhausted"
	OutcomeRejected  RequestOutcome = "rejected"
	OutcomeCancelled RequestOutcome = "cancelled"
)
