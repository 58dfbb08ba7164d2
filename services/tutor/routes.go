// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tutor

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianMentor/services/tutor/telemetry"
)

// RegisterRoutes registers all tutor routes with the router group.
//
// Description:
//
//	Registers the /v1/tutor/* endpoints. Plan and job routes are only
//	registered when their handlers were wired.
//
// Inputs:
//
//	rg - Gin router group (typically /v1).
//	handlers - The handlers instance.
//
// Endpoints:
//
//	POST   /v1/tutor/sessions - Create a session, returns the first question
//	POST   /v1/tutor/sessions/:id/turns - Submit a student answer
//	GET    /v1/tutor/sessions/:id - Session state snapshot
//	DELETE /v1/tutor/sessions/:id - Close a session
//	GET    /v1/tutor/sessions/:id/logs - Agent log inspection
//	POST   /v1/tutor/plans - Start a plan-workflow session
//	POST   /v1/tutor/plans/:id/turns - Submit a plan-workflow answer
//	GET    /v1/tutor/plans/:id - Plan workflow state
//	POST   /v1/tutor/jobs - Submit a background job
//	GET    /v1/tutor/jobs/:id - Inspect a background job
//	GET    /v1/tutor/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	tutor := rg.Group("/tutor")
	{
		// Session lifecycle
		tutor.POST("/sessions", handlers.HandleCreateSession)
		tutor.POST("/sessions/:id/turns", handlers.HandleTurn)
		tutor.GET("/sessions/:id", handlers.HandleGetSession)
		tutor.DELETE("/sessions/:id", handlers.HandleCloseSession)
		tutor.GET("/sessions/:id/logs", handlers.HandleGetLogs)

		// Plan workflow
		if handlers.workflow != nil {
			tutor.POST("/plans", handlers.HandleCreatePlan)
			tutor.POST("/plans/:id/turns", handlers.HandlePlanTurn)
			tutor.GET("/plans/:id", handlers.HandleGetPlan)
		}

		// Background jobs
		if handlers.jobs != nil && handlers.pool != nil {
			tutor.POST("/jobs", handlers.HandleCreateJob)
			tutor.GET("/jobs/:id", handlers.HandleGetJob)
		}

		// Health check
		tutor.GET("/health", handlers.HandleHealth)
	}
}

// NewRouter builds the service router with middleware and the metrics
// endpoint.
//
// Inputs:
//
//	handlers - The handlers instance.
//	debug - Enables gin debug mode when true.
//
// Outputs:
//
//	*gin.Engine - The ready-to-serve router.
func NewRouter(handlers *Handlers, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("tutor"))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	return router
}
