// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodes

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
)

// Prompt template names, resolvable through a PromptSource.
const (
	PromptPresent   = "present"
	PromptCheck     = "check"
	PromptRemediate = "remediate"
)

const defaultPresentPrompt = `You are a patient tutor teaching %[1]s to %[2]s.

Learning objectives:
%[3]s

Progress: step %[4]d of %[5]d. Current mastery estimate: %.2[6]f.

Conversation so far:
%[7]s
%[8]s
Produce the next short teaching segment followed by exactly one check question.

Respond in JSON:
{
  "message": "teaching segment ending with one question",
  "expected_answer_form": "free_text" | "multiple_choice" | "numeric",
  "hints": ["optional short hint"]
}`

const defaultCheckPrompt = `You are grading a student's answer.

Topic: %[1]s
Learning objectives:
%[2]s

Question asked:
%[3]s

Student's answer:
%[4]s

Grade the answer. Score 1.0 means fully correct, 0.0 means entirely wrong.
Labels name the specific concepts the answer shows trouble with (empty if
correct). Confidence is how sure you are of the grade.

Respond in JSON:
{
  "score": 0.0,
  "rationale": "one or two sentences",
  "labels": ["concept-name"],
  "confidence": 0.0
}`

const defaultRemediatePrompt = `You are a patient tutor. The student answered incorrectly.

Topic: %[1]s

Question asked:
%[2]s

Student's answer:
%[3]s

Grading notes: %[4]s
Struggling concepts: %[5]s

Re-explain the underlying idea with a different, simpler approach. Use an
analogy or worked example. Do not ask a new question yet.

Respond in JSON:
{
  "message": "the re-explanation",
  "expected_answer_form": "free_text",
  "hints": []
}`

// describeStudent renders a student profile for prompt inclusion.
func describeStudent(s agent.Student) string {
	parts := []string{}
	if s.Name != "" {
		parts = append(parts, s.Name)
	}
	if s.GradeLevel != "" {
		parts = append(parts, "grade level "+s.GradeLevel)
	}
	if s.Background != "" {
		parts = append(parts, "background: "+s.Background)
	}
	if len(parts) == 0 {
		return "a student"
	}
	return strings.Join(parts, ", ")
}

// describeObjectives renders goal objectives as a bullet list.
func describeObjectives(g agent.Goal) string {
	if len(g.Objectives) == 0 {
		return "- understand " + g.Topic
	}
	var b strings.Builder
	for _, o := range g.Objectives {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	return strings.TrimSpace(b.String())
}

// resolveTemplate returns the override for a prompt name, or the built-in
// default.
func resolveTemplate(deps *Dependencies, name, fallback string) string {
	if deps.Prompts != nil {
		if tmpl, ok := deps.Prompts.Prompt(name); ok && tmpl != "" {
			return tmpl
		}
	}
	return fallback
}
