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


// Package ai provides abstractions for the remote content analysis used when
// a file's text cannot be extracted locally.
//
// A ContentAnalyzer receives the raw payload together with the candidate
// categories and returns a ranked list of matches. Callers treat the result
// as advisory: the classify package only accepts the top match when it
// clears the same threshold as local content scoring.
//
// # Implementation Packages
//
//   - ai/openai: implementation over OpenAI-compatible chat APIs (Ollama,
//     LocalAI, vLLM, hosted OpenAI)
//   - ai/mock: test doubles for unit testing without external services
//
// # Constructor Return Type Pattern
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behavior and read call counts.
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithModel("gpt-4o-mini")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	matches, err := provider.ContentAnalyzer().Analyze(ctx, "notes.pdf", "application/pdf", data, candidates)
package ai
