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

package badger

const (
	portfolioPrefix    = "gpf:"
	documentPrefix     = "gdoc:"
	portfolioDocPrefix = "gdocp:"
	guidelinePrefix    = "gdl:"
	missingPrefix      = "gdlne:"

	// sep terminates the portfolio id inside composite keys so that "P1"
	// never prefix-matches "P10".
	sep = "\x00"
)

// makePortfolioKey generates a key for a portfolio by id.
func makePortfolioKey(id string) []byte {
	return []byte(portfolioPrefix + id)
}

// makeDocumentKey generates a key for a document by id.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makePortfolioDocKey generates a key for the documents-by-portfolio index.
// Format: prefix:portfolioID\x00docID
func makePortfolioDocKey(portfolioID, docID string) []byte {
	return []byte(portfolioDocPrefix + portfolioID + sep + docID)
}

// makePortfolioDocPrefix generates the partial key for one portfolio's documents.
func makePortfolioDocPrefix(portfolioID string) []byte {
	return []byte(portfolioDocPrefix + portfolioID + sep)
}

// makeGuidelineKey generates the composite primary key of a guideline.
// Format: prefix:portfolioID\x00ruleID
func makeGuidelineKey(portfolioID, ruleID string) []byte {
	return []byte(guidelinePrefix + portfolioID + sep + ruleID)
}

// makeGuidelinePrefix generates the partial key for one portfolio's
// guidelines, or for all guidelines when portfolioID is empty.
func makeGuidelinePrefix(portfolioID string) []byte {
	if portfolioID == "" {
		return []byte(guidelinePrefix)
	}
	return []byte(guidelinePrefix + portfolioID + sep)
}

// makeMissingKey generates a key for the missing-embedding index.
func makeMissingKey(portfolioID, ruleID string) []byte {
	return []byte(missingPrefix + portfolioID + sep + ruleID)
}

// makeMissingPrefix generates the partial key for one portfolio's
// unembedded guidelines, or for all of them when portfolioID is empty.
func makeMissingPrefix(portfolioID string) []byte {
	if portfolioID == "" {
		return []byte(missingPrefix)
	}
	return []byte(missingPrefix + portfolioID + sep)
}

// docIDFromIndexKey extracts the document id from a documents-by-portfolio key.
func docIDFromIndexKey(key []byte) string {
	for i := len(portfolioDocPrefix); i < len(key); i++ {
		if key[i] == 0 {
			return string(key[i+1:])
		}
	}
	return ""
}

// guidelineKeyFromMissing maps a missing-embedding index key to the
// guideline primary key.
func guidelineKeyFromMissing(key []byte) []byte {
	out := make([]byte, 0, len(guidelinePrefix)+len(key)-len(missingPrefix))
	out = append(out, guidelinePrefix...)
	return append(out, key[len(missingPrefix):]...)
}
