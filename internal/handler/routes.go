package handler

import (
	"github.com/gin-gonic/gin"
)

// PlanningHandlers groups the handlers mounted under /planning.
type PlanningHandlers struct {
	Proposals  *ProposalHandler
	Generation *GenerationHandler
	Lineage    *LineageHandler
	Quorum     *QuorumHandler
	Export     *ExportHandler
	Metrics    *MetricsHandler
	Auth       *AuthHandler
}

// RegisterPlanningRoutes mounts the review workflow on api. guard runs before every route;
// exportAudit runs only on the curriculum download.
func RegisterPlanningRoutes(api *gin.RouterGroup, h PlanningHandlers, exportAudit gin.HandlerFunc, guard ...gin.HandlerFunc) {
	planning := api.Group("/planning", guard...)

	objectives := planning.Group("/objectives")
	objectives.POST("", h.Proposals.CreateObjective)
	objectives.POST("/generate", h.Generation.GenerateObjectives)
	objectives.POST("/:id/rubrics", h.Proposals.CreateRubricLevel)
	objectives.POST("/:id/rubrics/generate", h.Generation.GenerateRubric)

	proposals := planning.Group("/proposals")
	proposals.GET("", h.Proposals.List)
	proposals.GET("/:id", h.Proposals.Get)
	proposals.PUT("/:id", h.Proposals.UpdateDraft)
	proposals.POST("/:id/submit", h.Proposals.Submit)
	proposals.POST("/:id/review", h.Proposals.Review)
	proposals.GET("/:id/lineage", h.Lineage.Get)

	planning.GET("/inbox", h.Proposals.Inbox)
	planning.GET("/quorum", h.Quorum.Get)
	if h.Auth != nil {
		planning.GET("/me", h.Auth.Me)
	}
	if h.Metrics != nil {
		planning.GET("/metrics", h.Metrics.Snapshot)
	}

	if exportAudit != nil {
		planning.GET("/export", exportAudit, h.Export.Curriculum)
	} else {
		planning.GET("/export", h.Export.Curriculum)
	}
}

// RegisterOpsRoutes mounts liveness, readiness and Prometheus endpoints at the root.
func RegisterOpsRoutes(r gin.IRoutes, h *MetricsHandler) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
}
