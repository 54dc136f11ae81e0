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

import "errors"

var (
	// ErrGeneratorRequired is returned when no ai.Generator is supplied.
	ErrGeneratorRequired = errors.New("generator is required")

	// ErrEmptyDocument is returned for a zero-length upload.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrGenerationFailed indicates every backend failed to answer.
	ErrGenerationFailed = errors.New("document understanding call failed")

	// ErrMalformedResponse indicates the model answered with something that
	// is not the expected JSON object.
	ErrMalformedResponse = errors.New("malformed response from the AI model")
)
