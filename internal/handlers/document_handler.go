package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/forecast-service/internal/ingest"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/services"
	"github.com/SAP-F-2025/forecast-service/internal/utils"
)

const maxUploadBytes = 10 << 20

type DocumentHandler struct {
	BaseHandler
	analysisService services.AnalysisService
	resultsService  services.ResultsService
}

func NewDocumentHandler(
	analysisService services.AnalysisService,
	resultsService services.ResultsService,
	logger utils.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		BaseHandler:     NewBaseHandler(logger),
		analysisService: analysisService,
		resultsService:  resultsService,
	}
}

type UploadResponse struct {
	Document *models.AnalysisDocument `json:"document"`
	Ingest   *models.IngestSummary    `json:"ingest"`
	Job      *services.SubmitResponse `json:"job,omitempty"`
}

// UploadDocument creates a document from a multipart wide-table upload
// @Summary Upload assessment scores
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX wide table"
// @Param title formData string true "Document title"
// @Param analyze formData bool false "Queue an analysis run after ingesting"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /documents [post]
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	start, err := parseOptionalDate(c.PostForm("test_start_date"))
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid test_start_date", err, err.Error())
		return
	}
	postMax, err := parseOptionalFloat(c.PostForm("post_test_max_score"))
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid post_test_max_score", err, err.Error())
		return
	}

	req := &services.CreateDocumentRequest{
		Title:            c.PostForm("title"),
		TestStartDate:    start,
		PostTestMaxScore: postMax,
	}
	if teacher := requestingUserID(c); teacher != "" {
		req.TeacherID = &teacher
	}
	if v := c.PostForm("section_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Invalid section_id", err, err.Error())
			return
		}
		section := uint(id)
		req.SectionID = &section
	}

	filename, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	table, err := ingest.ReadFile(filename, bytes.NewReader(data))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	ctx := c.Request.Context()
	doc, err := h.analysisService.CreateDocument(ctx, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	summary, err := h.analysisService.Ingest(ctx, doc.ID, table)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	resp := UploadResponse{Document: doc, Ingest: summary}
	if analyze, _ := strconv.ParseBool(c.PostForm("analyze")); analyze {
		job, err := h.analysisService.Submit(ctx, &services.SubmitRequest{DocumentID: doc.ID, RequestingUserID: requestingUserID(c)})
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		resp.Job = job
	}

	h.LogRequest(c, "Document uploaded", "document_id", doc.ID, "rows", summary.TotalRows)
	c.JSON(http.StatusCreated, resp)
}

// ReplaceRecords ingests a new wide table into an existing document
// @Summary Upload scores into a document
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param id path uint true "Document ID"
// @Param file formData file true "CSV or XLSX wide table"
// @Success 200 {object} models.IngestSummary
// @Failure 404 {object} ErrorResponse
// @Router /documents/{id}/records [post]
func (h *DocumentHandler) ReplaceRecords(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	filename, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	table, err := ingest.ReadFile(filename, bytes.NewReader(data))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	summary, err := h.analysisService.Ingest(c.Request.Context(), id, table)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListDocuments lists documents
// @Summary List documents
// @Tags documents
// @Produce json
// @Param page query int false "Page"
// @Param size query int false "Page size"
// @Param processed query bool false "Processed filter"
// @Success 200 {object} services.DocumentListResponse
// @Router /documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	resp, err := h.resultsService.ListDocuments(c.Request.Context(), parseDocumentFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetDocument retrieves a document by ID
// @Summary Get document
// @Tags documents
// @Produce json
// @Param id path uint true "Document ID"
// @Success 200 {object} models.AnalysisDocument
// @Failure 404 {object} ErrorResponse
// @Router /documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	doc, err := h.resultsService.GetDocument(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Analyze queues an analysis run
// @Summary Trigger analysis
// @Tags documents
// @Produce json
// @Param id path uint true "Document ID"
// @Success 202 {object} services.SubmitResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /documents/{id}/analyze [post]
func (h *DocumentHandler) Analyze(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}

	resp, err := h.analysisService.Submit(c.Request.Context(), &services.SubmitRequest{
		DocumentID:       id,
		RequestingUserID: requestingUserID(c),
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Analysis queued", "document_id", id, "job_id", resp.JobID)
	c.JSON(http.StatusAccepted, resp)
}

// GetForecasts returns the stored forecasts of a document
// @Summary Get forecasts
// @Tags results
// @Produce json
// @Param id path uint true "Document ID"
// @Success 200 {object} services.ForecastsResponse
// @Failure 404 {object} ErrorResponse
// @Router /documents/{id}/forecasts [get]
func (h *DocumentHandler) GetForecasts(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	resp, err := h.resultsService.GetForecasts(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetStatistics returns aggregated statistics and insights
// @Summary Get statistics
// @Tags results
// @Produce json
// @Param id path uint true "Document ID"
// @Success 200 {object} services.StatisticsResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /documents/{id}/statistics [get]
func (h *DocumentHandler) GetStatistics(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	resp, err := h.resultsService.GetStatistics(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DownloadReport streams the analysis workbook
// @Summary Download xlsx report
// @Tags results
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Document ID"
// @Success 200 {file} file
// @Failure 409 {object} ErrorResponse
// @Router /documents/{id}/report [get]
func (h *DocumentHandler) DownloadReport(c *gin.Context) {
	id := parseIDParam(c, "id")
	if id == 0 {
		return
	}
	ctx := c.Request.Context()

	forecasts, err := h.resultsService.GetForecasts(ctx, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	stats, err := h.resultsService.GetStatistics(ctx, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := ingest.WriteReport(&buf, forecasts, stats); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="document-%d-report.xlsx"`, id))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *DocumentHandler) readUpload(c *gin.Context) (string, []byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Missing file", err, "multipart field \"file\" is required")
		return "", nil, false
	}
	if header.Size > maxUploadBytes {
		h.RespondWithError(c, http.StatusRequestEntityTooLarge, "File too large", nil)
		return "", nil, false
	}
	f, err := header.Open()
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Unreadable file", err)
		return "", nil, false
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Unreadable file", err)
		return "", nil, false
	}
	return header.Filename, buf.Bytes(), true
}
