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

import "errors"

var (
	// ErrAgentOutput indicates an agent's output failed schema validation
	// after the single retry.
	ErrAgentOutput = errors.New("agent output failed validation")

	// ErrNoPlan indicates an operation that requires a plan ran before the
	// planner produced one.
	ErrNoPlan = errors.New("no study plan exists")

	// ErrPlanComplete indicates a turn arrived after the plan finished.
	ErrPlanComplete = errors.New("study plan already complete")

	// ErrNoCurrentStep indicates the plan has no runnable step.
	ErrNoCurrentStep = errors.New("no runnable plan step")
)
