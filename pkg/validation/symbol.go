// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, file paths, or subprocess calls. Using these validators
// prevents injection attacks (SQL injection, command injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// symbolPattern matches valid token symbols.
// Allows: uppercase letters, digits, dots (wstETH normalizes to WSTETH),
// hyphens for LP pair names (MATIC-USDC)
// Max length: 12 characters (covers wrapped and LP tokens)
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

// ValidateSymbol validates a token symbol to prevent query injection.
//
// Valid symbols:
//   - 1-12 characters
//   - Uppercase letters A-Z
//   - Digits 0-9
//   - Dots (.)
//   - Hyphens (-) for LP pairs like MATIC-USDC
//
// Returns an error if the symbol is invalid.
//
// Example:
//
//	if err := validation.ValidateSymbol(symbol); err != nil {
//	    return nil, fmt.Errorf("invalid symbol: %w", err)
//	}
//	// Safe to use in a market data query
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}

	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %q (must be 1-12 uppercase alphanumeric chars, dots, or hyphens)", symbol)
	}

	return nil
}

// ValidateSymbols validates multiple token symbols.
// Returns an error listing all invalid symbols if any fail validation.
func ValidateSymbols(symbols []string) error {
	var invalid []string
	for _, s := range symbols {
		if err := ValidateSymbol(s); err != nil {
			invalid = append(invalid, s)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid symbols: %v", invalid)
	}
	return nil
}

// SanitizeSymbol normalizes and validates a token symbol.
// Returns the uppercase symbol if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeSymbol, err := validation.SanitizeSymbol(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeSymbol is uppercase and validated
func SanitizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if err := ValidateSymbol(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
