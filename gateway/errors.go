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

package gateway

import "errors"

var (
	// ErrConfigRequired is returned when New is called without a config.
	ErrConfigRequired = errors.New("ai config is required")

	// ErrNoProvider is reported when no backend is available for a call.
	ErrNoProvider = errors.New("no available LLM providers configured")

	// ErrInvalidBackend is returned by WithBackend for a nil backend.
	ErrInvalidBackend = errors.New("backend cannot be nil")

	// ErrInvalidTimeout is returned by WithTimeout for a negative duration.
	ErrInvalidTimeout = errors.New("timeout cannot be negative")
)
