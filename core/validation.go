// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical document date format.
const DateLayout = "2006-01-02"

// ValidatePortfolio validates a Portfolio according to domain rules.
//
// Validation rules:
//   - ID must not be blank
//
// A blank Name is tolerated; stores fall back to the ID for display.
func ValidatePortfolio(p *Portfolio) error {
	if p == nil {
		return fmt.Errorf("%w: portfolio is nil", ErrInvalidPortfolio)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPortfolio, ErrEmptyPortfolioID)
	}
	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ID and PortfolioID must not be blank
//   - Date, when present, must parse as YYYY-MM-DD
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentID)
	}
	if strings.TrimSpace(d.PortfolioID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyPortfolioID)
	}
	if d.Date != "" && !IsValidDate(d.Date) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, ErrInvalidDate, d.Date)
	}
	return nil
}

// ValidateGuideline validates a Guideline according to domain rules.
//
// Validation rules:
//   - PortfolioID and RuleID must not be blank
//   - Text must not be blank
//
// NOT validated (populated later):
//   - Embedding (empty until the backfill runs)
func ValidateGuideline(g *Guideline) error {
	if g == nil {
		return fmt.Errorf("%w: guideline is nil", ErrInvalidGuideline)
	}
	if strings.TrimSpace(g.PortfolioID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidGuideline, ErrEmptyPortfolioID)
	}
	if strings.TrimSpace(g.RuleID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidGuideline, ErrEmptyRuleID)
	}
	if strings.TrimSpace(g.Text) == "" {
		return fmt.Errorf("%w: rule %s: %w", ErrInvalidGuideline, g.RuleID, ErrEmptyText)
	}
	return nil
}

// ValidateExtraction checks that a valid extraction can be persisted as a unit:
// portfolio, document and every guideline validate, guidelines reference the
// extraction's portfolio, and rule ids are unique.
func ValidateExtraction(r *ExtractionResult) error {
	if err := ValidatePortfolio(&r.Portfolio); err != nil {
		return err
	}
	if err := ValidateDocument(&r.Document); err != nil {
		return err
	}
	if r.Document.PortfolioID != r.Portfolio.ID {
		return fmt.Errorf("%w: %w: document %s", ErrInvalidDocument, ErrPortfolioMismatch, r.Document.ID)
	}
	seen := make(map[string]struct{}, len(r.Guidelines))
	for _, g := range r.Guidelines {
		if err := ValidateGuideline(g); err != nil {
			return err
		}
		if g.PortfolioID != r.Portfolio.ID {
			return fmt.Errorf("%w: %w: rule %s", ErrInvalidGuideline, ErrPortfolioMismatch, g.RuleID)
		}
		if _, dup := seen[g.RuleID]; dup {
			return fmt.Errorf("%w: %w: %s", ErrInvalidGuideline, ErrDuplicateRuleID, g.RuleID)
		}
		seen[g.RuleID] = struct{}{}
	}
	return nil
}

// IsValidDate checks if s is a YYYY-MM-DD date.
func IsValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
