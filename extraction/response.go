package extraction

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/guidelines/core"
)

// response mirrors the JSON object the extraction prompt asks for.
type response struct {
	IsValid           bool           `json:"is_valid_document"`
	ValidationSummary string         `json:"validation_summary"`
	PortfolioID       looseString    `json:"portfolio_id"`
	PortfolioName     string         `json:"portfolio_name"`
	DocID             looseString    `json:"doc_id"`
	DocName           string         `json:"doc_name"`
	DocDate           string         `json:"doc_date"`
	Guidelines        []rawGuideline `json:"guidelines"`
	Digest            *string        `json:"human_readable_digest"`
}

type rawGuideline struct {
	RuleID         looseString     `json:"rule_id"`
	Part           looseString     `json:"part"`
	Section        looseString     `json:"section"`
	Subsection     looseString     `json:"subsection"`
	Text           string          `json:"text"`
	Page           pageNumber      `json:"page"`
	Provenance     looseString     `json:"provenance"`
	StructuredData json.RawMessage `json:"structured_data"`
}

func (g rawGuideline) structuredData() json.RawMessage {
	trimmed := bytes.TrimSpace(g.StructuredData)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.RawMessage(trimmed)
}

// looseString accepts a JSON string, number or null. Models write part
// numbers and rule ids both ways.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(data)
	return nil
}

// pageNumber accepts an integer, a numeric string such as "12", or null.
type pageNumber int

func (p *pageNumber) UnmarshalJSON(data []byte) error {
	var s looseString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	if err != nil || n < 0 {
		*p = 0
		return nil
	}
	*p = pageNumber(n)
	return nil
}

var yearMonth = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// NormalizeDate coerces a model-supplied date to YYYY-MM-DD. A missing day
// becomes 01; anything unparseable yields "".
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if m := yearMonth.FindStringSubmatch(s); m != nil {
		s = m[1] + "-" + m[2] + "-01"
	}
	for _, layout := range []string{core.DateLayout, "2006/01/02", time.RFC3339, "January 2, 2006", "January 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(core.DateLayout)
		}
	}
	return ""
}
