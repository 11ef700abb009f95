package openai

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/filedrop/core"
)

const analysisResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "matches": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "candidateId": {"type": "string"},
          "confidence": {"type": "integer", "minimum": 0, "maximum": 100},
          "matchReasons": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["candidateId", "confidence", "matchReasons"],
        "additionalProperties": false
      }
    }
  },
  "required": ["matches"],
  "additionalProperties": false
}`

const analysisPromptTemplate = `You decide which course a student's file belongs to.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
or text outside the object. Your output must exactly follow this schema:

%s

Rules:
- candidateId must be one of the ids in the candidate list. Never invent ids.
- confidence is an integer from 0 (no evidence) to 100 (certain).
- matchReasons lists short pieces of evidence found in the file: course codes, topic words, instructor names.
- Return at most %d matches, best first. Omit candidates with no evidence.
- If nothing matches, return {"matches": []}.

Example:
Candidates: [{"id":"c1","code":"CS101","name":"Intro to Computer Science"},{"id":"c2","code":"MA201","name":"Calculus II"}]
File: "lecture3.pdf" containing "CS101 Lecture 3: recursion and algorithms"
Output:
{"matches":[{"candidateId":"c1","confidence":85,"matchReasons":["course code CS101","topic words recursion, algorithm"]}]}`

type promptCandidate struct {
	ID         string   `json:"id"`
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Instructor string   `json:"instructor,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

func buildSystemPrompt(maxMatches int) string {
	return fmt.Sprintf(analysisPromptTemplate, analysisResponseSchema, maxMatches)
}

func buildUserPrompt(fileName, mimeType, excerpt string, candidates []core.Candidate) (string, error) {
	list := make([]promptCandidate, len(candidates))
	for i, c := range candidates {
		list[i] = promptCandidate(c)
	}
	encoded, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}
	return fmt.Sprintf("Candidates: %s\nFile: %q (%s)\nContent:\n%s", encoded, fileName, mimeType, excerpt), nil
}
