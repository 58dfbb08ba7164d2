// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agentlog"
)

// DefaultCallTimeout bounds one structured agent call.
const DefaultCallTimeout = 60 * time.Second

// validate is the shared validator instance for agent output schemas.
var validate = validator.New()

// StructuredCaller runs one LLM turn against a declared output schema.
//
// Description:
//
//	All three workflow agents share this invocation contract: send a
//	structured prompt, decode the JSON reply into the agent's schema
//	struct, and validate it. A malformed or schema-invalid response is
//	retried once with the same input before being surfaced as
//	ErrAgentOutput. Timeouts are uniform across agents.
//
// Thread Safety: StructuredCaller is safe for concurrent use.
type StructuredCaller struct {
	client  llm.LLMClient
	logs    *agentlog.Store
	timeout time.Duration
}

// CallerOption configures a StructuredCaller.
type CallerOption func(*StructuredCaller)

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) CallerOption {
	return func(c *StructuredCaller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCallLogs records every agent call in a log store.
func WithCallLogs(logs *agentlog.Store) CallerOption {
	return func(c *StructuredCaller) {
		c.logs = logs
	}
}

// NewStructuredCaller creates a structured caller around an LLM client.
//
// Inputs:
//
//	client - The LLM backend.
//	opts - Configuration options.
//
// Outputs:
//
//	*StructuredCaller - The configured caller.
func NewStructuredCaller(client llm.LLMClient, opts ...CallerOption) *StructuredCaller {
	c := &StructuredCaller{
		client:  client,
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call runs one structured LLM turn.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	agentName - The calling agent, for logs.
//	sessionID - The session the call belongs to, for logs.
//	prompt - The structured prompt.
//	out - Pointer to the schema struct to decode into.
//
// Outputs:
//
//	error - ErrAgentOutput after a failed retry, or a classified LLM error.
//
// Thread Safety: This method is safe for concurrent use.
func (c *StructuredCaller) Call(ctx context.Context, agentName, sessionID, prompt string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := llm.GenerationParams{JSONMode: true}

	raw, err := c.client.Generate(ctx, prompt, params)
	if err == nil {
		if decodeErr := c.decode(raw, out); decodeErr == nil {
			c.log(agentName, sessionID, prompt, raw, "")
			return nil
		}
	}
	if err != nil && !errors.Is(err, llm.ErrInvalidOutput) {
		c.log(agentName, sessionID, prompt, "", err.Error())
		return err
	}

	raw, err = c.client.Generate(ctx, prompt, params)
	if err != nil {
		c.log(agentName, sessionID, prompt, "", err.Error())
		return err
	}
	if decodeErr := c.decode(raw, out); decodeErr != nil {
		c.log(agentName, sessionID, prompt, raw, decodeErr.Error())
		return fmt.Errorf("%w: %s: %v", ErrAgentOutput, agentName, decodeErr)
	}
	c.log(agentName, sessionID, prompt, raw, "")
	return nil
}

// decode parses and validates one raw response against the schema struct.
func (c *StructuredCaller) decode(raw string, out any) error {
	payload := llm.ExtractJSON(raw)
	if payload == "" {
		return errors.New("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return err
	}
	return validate.Struct(out)
}

// log records one agent call round trip.
func (c *StructuredCaller) log(agentName, sessionID, prompt, output, errMsg string) {
	if c.logs == nil {
		return
	}
	entry := agentlog.Entry{
		SessionID: sessionID,
		AgentName: agentName,
		EventType: "agent_call",
		Output:    output,
		Prompt:    prompt,
		Model:     c.client.Model(),
	}
	if errMsg != "" {
		entry.EventType = "agent_error"
		entry.Reasoning = errMsg
	}
	c.logs.AddLog(entry)
}
