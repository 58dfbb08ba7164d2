// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nodes implements the tutor graph's node executors.
//
// Each node is a small unit of turn logic: PRESENT and REMEDIATE call the
// LLM to produce teaching output, CHECK calls it to grade an answer, and
// DIAGNOSE and ADVANCE are pure bookkeeping over the working turn state.
package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agentlog"
)

// historyWindow is the number of trailing conversation turns rendered into
// prompts. Session history itself is never truncated.
const historyWindow = 8

// validate is the shared validator instance for LLM output structs.
var validate = validator.New()

// PromptSource supplies prompt templates by name. Implementations may hot
// reload templates from disk.
type PromptSource interface {
	// Prompt returns the template text for a name, or false if the source
	// has no override for it.
	Prompt(name string) (string, bool)
}

// Dependencies contains everything the nodes need to execute.
//
// Thread Safety: Dependencies is read-only after construction; all fields
// must themselves be safe for concurrent use.
type Dependencies struct {
	// LLM generates teaching and grading output.
	LLM llm.LLMClient

	// Logs records per-turn agent activity. Optional.
	Logs *agentlog.Store

	// Prompts overrides the built-in prompt templates. Optional.
	Prompts PromptSource
}

// depsFrom unpacks the untyped dependency handle the router carries.
func depsFrom(raw any) (*Dependencies, error) {
	deps, ok := raw.(*Dependencies)
	if !ok || deps == nil {
		return nil, errors.New("nodes: missing dependencies")
	}
	if deps.LLM == nil {
		return nil, errors.New("nodes: missing LLM client")
	}
	return deps, nil
}

// generateJSON calls the LLM expecting a JSON object and decodes it into
// out, validating the result. A response that fails to decode or validate
// is retried once with a corrective instruction appended.
func generateJSON(ctx context.Context, deps *Dependencies, ts *agent.TurnState, nodeName, prompt string, out any) error {
	params := llm.GenerationParams{JSONMode: true}

	raw, err := deps.LLM.Generate(ctx, prompt, params)
	if err == nil {
		if decodeErr := decodeAndValidate(raw, out); decodeErr == nil {
			logCall(deps, ts, nodeName, prompt, raw, "")
			return nil
		}
	}

	// The corrective suffix only makes sense when the model actually
	// replied with something malformed; a failed call retries the
	// original prompt unchanged.
	retryPrompt := prompt
	if err == nil {
		retryPrompt += "\n\nYour previous response was not valid JSON matching the required schema. Respond with ONLY the JSON object, no prose."
	}
	raw, err = deps.LLM.Generate(ctx, retryPrompt, params)
	if err != nil {
		logCall(deps, ts, nodeName, prompt, "", err.Error())
		return err
	}
	if decodeErr := decodeAndValidate(raw, out); decodeErr != nil {
		logCall(deps, ts, nodeName, prompt, raw, decodeErr.Error())
		return fmt.Errorf("%w: %v", llm.ErrInvalidOutput, decodeErr)
	}
	logCall(deps, ts, nodeName, prompt, raw, "")
	return nil
}

// decodeAndValidate parses a JSON payload (possibly fenced) into out and
// runs struct validation on it.
func decodeAndValidate(raw string, out any) error {
	payload := llm.ExtractJSON(raw)
	if payload == "" {
		return errors.New("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return err
	}
	return validate.Struct(out)
}

// logCall records one LLM round trip in the agent log store.
func logCall(deps *Dependencies, ts *agent.TurnState, nodeName, prompt, output, errMsg string) {
	if deps.Logs == nil {
		return
	}

	entry := agentlog.Entry{
		SessionID:    ts.SessionID,
		TurnID:       ts.TurnID,
		AgentName:    nodeName,
		EventType:    "llm_call",
		InputSummary: summarize(prompt, 240),
		Output:       summarize(output, 1024),
		Prompt:       prompt,
		Model:        deps.LLM.Model(),
	}
	if errMsg != "" {
		entry.EventType = "llm_error"
		entry.Reasoning = errMsg
	}
	deps.Logs.AddLog(entry)
}

// logEvent records a non-LLM node event in the agent log store.
func logEvent(deps *Dependencies, ts *agent.TurnState, nodeName, eventType, output string) {
	if deps.Logs == nil {
		return
	}
	deps.Logs.AddLog(agentlog.Entry{
		SessionID: ts.SessionID,
		TurnID:    ts.TurnID,
		AgentName: nodeName,
		EventType: eventType,
		Output:    summarize(output, 1024),
	})
}

// summarize trims a string to at most n runes for log storage.
func summarize(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// renderHistory formats the trailing window of conversation turns for
// prompt inclusion.
func renderHistory(turns []agent.Turn) string {
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	if len(turns) == 0 {
		return "(no prior conversation)"
	}

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimSpace(b.String())
}

// lastTutorMessage returns the most recent tutor turn content, walking the
// pending appends first and then the prior history.
func lastTutorMessage(ts *agent.TurnState) string {
	for i := len(ts.NewHistory) - 1; i >= 0; i-- {
		if ts.NewHistory[i].Role == "tutor" {
			return ts.NewHistory[i].Content
		}
	}
	for i := len(ts.PriorHistory) - 1; i >= 0; i-- {
		if ts.PriorHistory[i].Role == "tutor" {
			return ts.PriorHistory[i].Content
		}
	}
	return ""
}

// appendTutorTurn records a tutor message as a pending history entry.
func appendTutorTurn(ts *agent.TurnState, state agent.TutorState, content string) {
	ts.AppendHistory(agent.Turn{
		Role:      "tutor",
		Content:   content,
		State:     state,
		TurnID:    ts.TurnID,
		Timestamp: time.Now(),
	})
}

// RegisterAll wires every node into a registry.
//
// Outputs:
//
//	*agent.DefaultNodeRegistry - Registry with all five nodes registered.
func RegisterAll(registry *agent.DefaultNodeRegistry) *agent.DefaultNodeRegistry {
	registry.Register(agent.StatePresent, NewPresentNode())
	registry.Register(agent.StateCheck, NewCheckNode())
	registry.Register(agent.StateRemediate, NewRemediateNode())
	registry.Register(agent.StateDiagnose, NewDiagnoseNode())
	registry.Register(agent.StateAdvance, NewAdvanceNode())
	return registry
}
