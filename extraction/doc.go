// Package extraction turns an uploaded policy document into a structured
// core.ExtractionResult by sending it, with a fixed instruction prompt, to a
// text-generation backend through an ai.Generator.
//
// The model is asked to decide whether the document is an investment policy
// statement, identify its portfolio and document, and list every rule it
// contains with provenance. Its JSON answer is recovered with ai.DecodeJSON
// and normalized: dates are coerced to YYYY-MM-DD, guidelines without a
// rule id get a content-derived one, duplicate rule ids are suffixed, and
// empty rules are dropped.
//
// Extract returns an error for transport failures and unparseable output.
// Callers that need a result regardless use Invalid to turn that error into
// an ExtractionResult with IsValid false.
package extraction
