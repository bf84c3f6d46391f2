// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package datatypes provides data structures for the dashboard service.
//
// This file contains request types for the AI-agent endpoints (streaming
// chat and portfolio analysis).
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	// Byte length, not rune count, to bound memory for large payloads.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// DefaultPortfolioID is used when a request omits portfolioId.
	DefaultPortfolioID = 1
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Register custom validator for message content size
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Checks byte length (not rune count) to prevent
// memory exhaustion with large payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Agent Chat Request
// =============================================================================

// AgentChatRequest represents the POST /api/ai-chat request body.
//
// # Fields
//
//   - Message: Required. The user's chat message. Limited to 32KB.
//   - PortfolioID: Optional. Portfolio the conversation belongs to.
//     Defaults to 1 when omitted or zero.
//
// # Validation
//
// Uses go-playground/validator:
//   - Message: required, max 32768 bytes
//   - PortfolioID: >= 0
type AgentChatRequest struct {
	Message     string `json:"message" validate:"required,maxbytes"`
	PortfolioID int64  `json:"portfolioId" validate:"gte=0"`
}

// Validate validates the AgentChatRequest fields.
//
// Call after binding the JSON request:
//
//	if err := req.Validate(); err != nil {
//	    return fmt.Errorf("invalid request: %w", err)
//	}
func (r *AgentChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates default values for optional fields.
func (r *AgentChatRequest) EnsureDefaults() {
	if r.PortfolioID == 0 {
		r.PortfolioID = DefaultPortfolioID
	}
}

// =============================================================================
// Analyze Request
// =============================================================================

// AnalyzeRequest represents the POST /api/ai-agent/analyze request body.
//
// AnalysisType selects the generated insight:
//   - "risk": concentration and exposure assessment (severity "warning")
//   - "yield": idle-capital opportunities (severity "opportunity")
type AnalyzeRequest struct {
	PortfolioID  int64  `json:"portfolioId" validate:"gte=0"`
	AnalysisType string `json:"analysisType" validate:"required,oneof=risk yield"`
}

// Validate validates the AnalyzeRequest fields.
func (r *AnalyzeRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates default values for optional fields.
func (r *AnalyzeRequest) EnsureDefaults() {
	if r.PortfolioID == 0 {
		r.PortfolioID = DefaultPortfolioID
	}
}
