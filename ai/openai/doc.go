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


// Package openai implements ai.ContentAnalyzer over OpenAI-compatible chat APIs.
//
// Requests go through langchaingo in JSON mode at temperature 0. The model
// is shown the candidate list and an excerpt of the payload and asked for a
// ranked list of {candidateId, confidence, matchReasons}. Malformed JSON is
// repaired where possible and the request is retried up to three times.
//
// # Usage
//
//	cfg := ai.NewConfig(ai.WithHost("http://localhost:11434"), ai.WithModel("qwen2.5:3b"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	matches, err := provider.ContentAnalyzer().Analyze(ctx, name, mimeType, payload, candidates)
package openai
