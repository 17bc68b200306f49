package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/forecast-service/internal/services"
	"github.com/SAP-F-2025/forecast-service/internal/utils"
)

type EvaluationHandler struct {
	BaseHandler
	evaluationService services.EvaluationService
}

func NewEvaluationHandler(evaluationService services.EvaluationService, logger utils.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		BaseHandler:       NewBaseHandler(logger),
		evaluationService: evaluationService,
	}
}

type RecordPostTestsResponse struct {
	DocumentID uint `json:"document_id"`
	Recorded   int  `json:"recorded"`
}

// RecordPostTests stores actual post-test scores
// @Summary Record post-test scores
// @Tags evaluation
// @Accept json
// @Produce json
// @Param id path uint true "Document ID"
// @Param scores body services.RecordPostTestsRequest true "Post-test scores"
// @Success 201 {object} RecordPostTestsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /documents/{id}/post-tests [post]
func (h *EvaluationHandler) RecordPostTests(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.RecordPostTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	count, err := h.evaluationService.RecordPostTests(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, RecordPostTestsResponse{DocumentID: id, Recorded: count})
}

// GetEvaluation compares forecasts with recorded post-test scores
// @Summary Evaluate forecasts
// @Tags evaluation
// @Produce json
// @Param id path uint true "Document ID"
// @Success 200 {object} services.EvaluationResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /documents/{id}/evaluation [get]
func (h *EvaluationHandler) GetEvaluation(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	resp, err := h.evaluationService.Evaluate(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
