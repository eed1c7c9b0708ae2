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

// Package ai defines the model-backed services used by the Transform stage.
//
// Two services exist:
//
//   - KnowledgeExtractor turns a conversation into a titled, summarized,
//     tagged knowledge document (import sessions).
//   - Classifier files a finished document into one of a fixed list of
//     categories (organize sessions).
//
// AIProvider aggregates both for initialization and shutdown.
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: deterministic test doubles
//
// Public production constructors return interface types. Mock constructors
// return concrete types so tests can inject behavior and inspect call counts:
//
//	provider := mock.NewMockProvider()
//	provider.GetMockClassifier().ClassifyFunc = func(ctx context.Context, text string) (string, error) {
//	    return "research", nil
//	}
package ai
