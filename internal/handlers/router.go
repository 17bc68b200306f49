package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/forecast-service/internal/services"
	"github.com/SAP-F-2025/forecast-service/internal/utils"
)

const serviceName = "forecast-service"

type HandlerManager struct {
	documentHandler   *DocumentHandler
	evaluationHandler *EvaluationHandler
	auth              gin.HandlerFunc
}

type HandlerDeps struct {
	Analysis   services.AnalysisService
	Results    services.ResultsService
	Evaluation services.EvaluationService
	// Tokens verifies bearer tokens; nil falls back to the X-User-ID header.
	Tokens TokenParser
	Logger utils.Logger
}

func NewHandlerManager(deps HandlerDeps) *HandlerManager {
	return &HandlerManager{
		documentHandler:   NewDocumentHandler(deps.Analysis, deps.Results, deps.Logger),
		evaluationHandler: NewEvaluationHandler(deps.Evaluation, deps.Logger),
		auth:              AuthMiddleware(deps.Tokens),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(hm.auth)
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", hm.documentHandler.UploadDocument)
			documents.GET("", hm.documentHandler.ListDocuments)
			documents.GET("/:id", hm.documentHandler.GetDocument)
			documents.POST("/:id/records", hm.documentHandler.ReplaceRecords)

			// Analysis
			documents.POST("/:id/analyze", hm.documentHandler.Analyze)
			documents.GET("/:id/forecasts", hm.documentHandler.GetForecasts)
			documents.GET("/:id/statistics", hm.documentHandler.GetStatistics)
			documents.GET("/:id/report", hm.documentHandler.DownloadReport)

			// Evaluation
			documents.POST("/:id/post-tests", hm.evaluationHandler.RecordPostTests)
			documents.GET("/:id/evaluation", hm.evaluationHandler.GetEvaluation)
		}
	}
}

// NewRouter builds a gin engine with logging, recovery and the API routes.
func NewRouter(hm *HandlerManager, logger utils.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))
	router.Use(utils.ContextLogger(logger))
	hm.SetupRoutes(router)
	return router
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}
