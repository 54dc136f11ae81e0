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

// Package gemini provides the Google Gemini generation backend and embedder
// using the google.golang.org/genai SDK.
//
// The backend accepts PDF attachments natively, which makes it the preferred
// provider for document extraction. The embedder distinguishes document and
// query task types (RETRIEVAL_DOCUMENT, RETRIEVAL_QUERY) so guideline vectors
// and question vectors live in the same retrieval space.
package gemini
