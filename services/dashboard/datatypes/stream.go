// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package datatypes

// StreamEvent is the JSON payload of one SSE data frame on the chat stream.
//
// Exactly one field is set per frame:
//
//	data: {"content":"Your "}
//	data: {"done":true}
//	data: {"error":"stream interrupted"}
type StreamEvent struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}
