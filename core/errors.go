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

import "errors"

// Domain validation errors
var (
	// ErrInvalidPortfolio indicates a Portfolio failed validation.
	ErrInvalidPortfolio = errors.New("invalid portfolio")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidGuideline indicates a Guideline failed validation.
	ErrInvalidGuideline = errors.New("invalid guideline")

	// ErrEmptyPortfolioID indicates the portfolio identifier is empty.
	ErrEmptyPortfolioID = errors.New("portfolio id cannot be empty")

	// ErrEmptyDocumentID indicates the document identifier is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrEmptyRuleID indicates the rule identifier is empty.
	ErrEmptyRuleID = errors.New("rule id cannot be empty")

	// ErrEmptyText indicates the guideline text is empty.
	ErrEmptyText = errors.New("guideline text cannot be empty")

	// ErrPortfolioMismatch indicates a record references a different portfolio than its parent.
	ErrPortfolioMismatch = errors.New("portfolio id mismatch")

	// ErrInvalidDate indicates a document date is not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("document date must be YYYY-MM-DD")

	// ErrDuplicateRuleID indicates two guidelines of one extraction share a rule id.
	ErrDuplicateRuleID = errors.New("duplicate rule id")
)
