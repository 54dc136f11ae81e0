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

package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/guidelines/ai"
	"github.com/poiesic/guidelines/core"
)

// MalformedSummary is the validation summary of an extraction whose model
// call failed or could not be parsed.
const MalformedSummary = "Failed to process the document due to a malformed response from the AI model."

const unknownPortfolio = "Unknown Portfolio"

// Extractor calls a text-generation backend to extract guidelines from a document.
type Extractor struct {
	gen      ai.Generator
	provider ai.ProviderName
	model    string
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		e.logger = logger.With("component", "extractor")
		return nil
	}
}

// WithProvider pins the backend to try first.
func WithProvider(p ai.ProviderName) Option {
	return func(e *Extractor) error {
		if p != "" && !p.Valid() {
			return fmt.Errorf("unknown provider %q", p)
		}
		e.provider = p
		return nil
	}
}

// WithModel overrides the model of the first backend tried.
func WithModel(model string) Option {
	return func(e *Extractor) error {
		e.model = model
		return nil
	}
}

// NewExtractor creates an Extractor over gen.
func NewExtractor(gen ai.Generator, opts ...Option) (*Extractor, error) {
	if gen == nil {
		return nil, ErrGeneratorRequired
	}
	e := &Extractor{
		gen:    gen,
		logger: slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Extract sends data to the model and normalizes its answer. name is the
// declared file name of the upload.
func (e *Extractor) Extract(ctx context.Context, data []byte, name string) (*core.ExtractionResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	mimeType := DetectMIMEType(data, name)
	e.logger.Info("starting extraction", "name", name, "bytes", len(data), "mime_type", mimeType)

	start := time.Now()
	resp := e.gen.Generate(ctx, ai.Request{
		Prompt:      extractionPrompt,
		Provider:    e.provider,
		Model:       e.model,
		Temperature: 0,
		JSON:        true,
		Attachments: []ai.Attachment{{Name: name, MIMEType: mimeType, Data: data}},
	})
	if !resp.Success {
		e.logger.Error("extraction call failed", "name", name, "err", resp.Error)
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, resp.Error)
	}
	e.logger.Info("extraction call completed",
		"name", name,
		"provider", resp.ProviderUsed,
		"duration", time.Since(start))

	var raw response
	if err := ai.DecodeJSON(resp.Content, &raw); err != nil {
		e.logger.Error("could not parse extraction response", "err", err)
		e.logger.Debug("raw extraction response", "content", ai.Truncate(resp.Content, 2000))
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	result := e.normalize(&raw, data, name)
	e.logger.Info("extraction parsed",
		"valid", result.IsValid,
		"portfolio_id", result.Portfolio.ID,
		"doc_id", result.Document.ID,
		"guidelines", len(result.Guidelines))
	return result, nil
}

// Invalid turns an extraction failure into a result that skips persistence.
func Invalid(err error) *core.ExtractionResult {
	summary := MalformedSummary
	if err != nil {
		summary = MalformedSummary + " " + err.Error()
	}
	return &core.ExtractionResult{
		IsValid:           false,
		ValidationSummary: summary,
		Portfolio:         core.Portfolio{ID: unknownPortfolio, Name: unknownPortfolio},
	}
}

// DetectMIMEType sniffs data, falling back to the file extension when the
// content is not recognized.
func DetectMIMEType(data []byte, name string) string {
	mimeType := http.DetectContentType(data)
	if mimeType != "application/octet-stream" {
		return mimeType
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "application/pdf"
	}
	return mimeType
}

func (e *Extractor) normalize(raw *response, data []byte, name string) *core.ExtractionResult {
	result := &core.ExtractionResult{
		IsValid:           raw.IsValid,
		ValidationSummary: strings.TrimSpace(raw.ValidationSummary),
	}

	portfolioID := strings.TrimSpace(string(raw.PortfolioID))
	portfolioName := strings.TrimSpace(raw.PortfolioName)
	if portfolioName == "" {
		portfolioName = portfolioID
	}
	result.Portfolio = core.Portfolio{ID: portfolioID, Name: portfolioName}

	if !result.IsValid {
		if result.Portfolio.ID == "" {
			result.Portfolio = core.Portfolio{ID: unknownPortfolio, Name: unknownPortfolio}
		}
		return result
	}
	if portfolioID == "" || portfolioID == unknownPortfolio {
		result.IsValid = false
		result.ValidationSummary = strings.TrimSpace(result.ValidationSummary +
			" No portfolio identifier could be extracted from the document.")
		return result
	}

	date := NormalizeDate(raw.DocDate)
	fingerprint := core.IDFromBytes(data)
	docID := strings.TrimSpace(string(raw.DocID))
	if docID == "" {
		if date != "" {
			docID = portfolioID + "_" + date
		} else {
			docID = portfolioID + "_" + fingerprint.String()
		}
	}
	docName := strings.TrimSpace(raw.DocName)
	if docName == "" {
		docName = name
	}
	digest := ""
	if raw.Digest != nil {
		digest = strings.TrimSpace(*raw.Digest)
	}

	result.Document = core.Document{
		ID:          docID,
		PortfolioID: portfolioID,
		Name:        docName,
		Date:        date,
		Digest:      digest,
		SourceName:  name,
		Fingerprint: fingerprint,
	}
	result.Digest = digest
	result.Guidelines = e.guidelines(raw.Guidelines, portfolioID, docID)
	return result
}

// guidelines drops empty rules, fills missing rule ids and makes rule ids
// unique within the extraction.
func (e *Extractor) guidelines(raw []rawGuideline, portfolioID, docID string) []*core.Guideline {
	seen := make(map[string]bool, len(raw))
	out := make([]*core.Guideline, 0, len(raw))
	for i, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			e.logger.Warn("dropping guideline without text", "index", i, "rule_id", r.RuleID)
			continue
		}
		section := strings.TrimSpace(string(r.Section))

		ruleID := strings.TrimSpace(string(r.RuleID))
		if ruleID == "" {
			ruleID = core.RuleIDFromContent(docID, section, text)
		}
		unique := ruleID
		for n := 2; seen[unique]; n++ {
			unique = fmt.Sprintf("%s-%d", ruleID, n)
		}
		if unique != ruleID {
			e.logger.Warn("duplicate rule id", "rule_id", ruleID, "renamed", unique)
			ruleID = unique
		}
		seen[ruleID] = true

		out = append(out, &core.Guideline{
			PortfolioID:    portfolioID,
			RuleID:         ruleID,
			DocID:          docID,
			Part:           strings.TrimSpace(string(r.Part)),
			Section:        section,
			Subsection:     strings.TrimSpace(string(r.Subsection)),
			Text:           text,
			Page:           int(r.Page),
			Provenance:     strings.TrimSpace(string(r.Provenance)),
			StructuredData: r.structuredData(),
		})
	}
	return out
}
