// Package routing implements the conversation routing pipeline: a
// deterministic, ordered cascade of business-rule layers that answers a
// customer message, with full per-layer tracing and a hand-off point to
// generative backends when no rule applies.
package routing

import (
	"time"

	"github.com/warintorn/shoptalk/bot/business"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one immutable entry of the caller-supplied history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StepStatus is the closed set of per-layer outcomes.
type StepStatus string

const (
	// StatusMatched means the layer produced the response and halted
	// the cascade.
	StatusMatched StepStatus = "matched"
	// StatusChecked means the layer ran but deferred to later layers.
	StatusChecked StepStatus = "checked"
	// StatusSkipped means the layer's precondition did not hold.
	StatusSkipped StepStatus = "skipped"
	// StatusNotReached means an earlier layer halted the cascade first.
	StatusNotReached StepStatus = "not_reached"
)

// TraceMode records how the final content was produced.
type TraceMode string

const (
	// ModeRule: a cascade layer answered.
	ModeRule TraceMode = "rule"
	// ModeGenerative: a generative backend answered after the cascade
	// fell through.
	ModeGenerative TraceMode = "generative"
	// ModeGenerativeFailed: backend dispatch was attempted but reverted
	// to the default-fallback copy.
	ModeGenerativeFailed TraceMode = "generative_failed"
)

// PipelineStep is the execution record of one layer.
type PipelineStep struct {
	Layer       int            `json:"layer"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      StepStatus     `json:"status"`
	DurationMs  float64        `json:"duration_ms"`
	Details     map[string]any `json:"details,omitempty"`
}

// PipelineTrace is the complete, fixed-shape record of one request.
// Steps always cover every defined layer; layers the short-circuit never
// reached are present with StatusNotReached.
type PipelineTrace struct {
	ID              string         `json:"id"`
	TotalDurationMs float64        `json:"total_duration_ms"`
	Mode            TraceMode      `json:"mode"`
	Steps           []PipelineStep `json:"steps"`
	FinalLayer      int            `json:"final_layer"`
	FinalLayerName  string         `json:"final_layer_name"`
	FinalIntent     string         `json:"final_intent,omitempty"`
	UserMessage     string         `json:"user_message"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Request carries everything the pipeline needs for one message.
type Request struct {
	CurrentMessage string
	History        []Message
	Config         *business.Config
}

// Result is the routing outcome handed back to the transport layer.
type Result struct {
	Content string         `json:"content"`
	Trace   *PipelineTrace `json:"trace"`

	IsAdminEscalation  bool     `json:"is_admin_escalation,omitempty"`
	IsCancelEscalation bool     `json:"is_cancel_escalation,omitempty"`
	ClarifyOptions     []string `json:"clarify_options,omitempty"`
}

// Canonical layer numbering. The order is product behavior that
// downstream templates are tuned against; do not reorder.
const (
	LayerContextExtraction   = 0
	LayerAdminEscalation     = 1
	LayerVATRefund           = 2
	LayerStockInquiry        = 3
	LayerDiscontinued        = 4
	LayerContextContinuation = 5
	LayerIntentEngine        = 6
	LayerSaleScript          = 7
	LayerKnowledgeBase       = 8
	LayerFAQSearch           = 9
	LayerProductSearch       = 10
	LayerCategoryBrowse      = 11
	LayerCategoryDetect      = 12
	LayerContextFallback     = 13
	LayerDefaultFallback     = 14

	// LayerGenerativeDispatch is the synthetic step appended when the
	// fallback dispatcher hands off to a backend.
	LayerGenerativeDispatch = 15

	layerCount = 15
)

type layerInfo struct {
	name        string
	description string
}

var layerTable = [layerCount]layerInfo{
	{"context_extraction", "Build conversation context from history"},
	{"admin_escalation", "Detect requests to talk to a human"},
	{"vat_refund", "Detect VAT/tax refund requests"},
	{"stock_inquiry", "Detect stock availability questions"},
	{"discontinued_product", "Detect discontinued product mentions"},
	{"context_continuation", "Resolve follow-up against active product"},
	{"intent_engine", "Score configured intents and dispatch handlers"},
	{"sale_script", "Match keyword-triggered sale scripts"},
	{"knowledge_base", "Match keyword-triggered knowledge documents"},
	{"faq_search", "Match configured FAQ keyword sets"},
	{"product_search", "Full-text product search over the catalog"},
	{"category_browse", "Detect generic what-do-you-sell questions"},
	{"category_detect", "Detect category-specific interest"},
	{"context_fallback", "Answer generically about the active product"},
	{"default_fallback", "Unconditional business default reply"},
}

// LayerName returns the canonical name for a layer number.
func LayerName(layer int) string {
	if layer >= 0 && layer < layerCount {
		return layerTable[layer].name
	}
	if layer == LayerGenerativeDispatch {
		return "generative_dispatch"
	}
	return "unknown"
}
