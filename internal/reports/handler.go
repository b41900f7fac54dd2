package reports

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"financial-reporter/internal/shared/server/middleware"
	"financial-reporter/internal/shared/server/respond"
	"financial-reporter/internal/shared/telemetry"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

// Handler wires HTTP handlers to the report service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches report routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reports/upload", h.upload)
	rg.GET("/reports", h.list)
	rg.GET("/reports/:id", h.get)
	rg.GET("/reports/:id/file", h.download)
	rg.POST("/reports/:id/analyze", h.analyze)
	rg.PUT("/reports/:id/status", h.updateStatus)
	rg.PUT("/reports/:id", h.update)
	rg.DELETE("/reports/:id", h.delete)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.maxUpload()+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodeFileTooLarge, "file exceeds upload limit", gin.H{"maxBytes": h.Svc.maxUpload()})
			return
		}
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read file", nil)
		return
	}
	defer file.Close()

	userID := strings.TrimSpace(c.PostForm("user_id"))
	if userID == "" {
		userID = middleware.UserIDFromContext(c)
	}

	report, err := h.Svc.Upload(h.requestContext(c), UploadInput{
		UserID:      userID,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		h.writeError(c, err, "failed to upload report")
		return
	}

	c.Set(middleware.ReportIDKey, report.ID)
	c.Set(middleware.StatusTransitionKey, "->"+StatusUploaded)
	respond.Created(c, toResponse(report, h.Svc.DownloadURL(c.Request.Context(), report), false))
}

func (h *Handler) list(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		userID = middleware.UserIDFromContext(c)
	}

	filter := ListFilter{
		UserID: userID,
		Status: strings.TrimSpace(c.Query("status")),
		Limit:  queryInt(c, "limit", DefaultListLimit),
		Offset: queryInt(c, "offset", 0),
	}
	reports, err := h.Svc.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err, "failed to list reports")
		return
	}

	resp := make([]ReportResponse, 0, len(reports))
	for _, report := range reports {
		resp = append(resp, toResponse(report, h.Svc.DownloadURL(c.Request.Context(), report), false))
	}
	respond.OK(c, resp)
}

func (h *Handler) get(c *gin.Context) {
	reportID := c.Param("id")
	c.Set(middleware.ReportIDKey, reportID)

	report, err := h.Svc.Get(c.Request.Context(), reportID)
	if err != nil {
		h.writeError(c, err, "failed to fetch report")
		return
	}
	respond.OK(c, toResponse(report, h.Svc.DownloadURL(c.Request.Context(), report), true))
}

func (h *Handler) download(c *gin.Context) {
	reportID := c.Param("id")
	c.Set(middleware.ReportIDKey, reportID)

	report, body, err := h.Svc.OpenFile(c.Request.Context(), reportID)
	if err != nil {
		h.writeError(c, err, "failed to open report file")
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(report.FileName, `"`, "")+`"`)
	c.Header("Content-Type", report.FileType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		telemetry.Warn("report.download.copy_failed", map[string]any{"report_id": reportID, "error": err.Error()})
	}
}

func (h *Handler) analyze(c *gin.Context) {
	reportID := c.Param("id")
	c.Set(middleware.ReportIDKey, reportID)

	report, err := h.Svc.Analyze(h.requestContext(c), reportID)
	if err != nil {
		h.writeError(c, err, "failed to start analysis")
		return
	}

	c.Set(middleware.StatusTransitionKey, "->"+StatusProcessing)
	respond.Accepted(c, gin.H{"id": report.ID, "status": report.Status})
}

func (h *Handler) updateStatus(c *gin.Context) {
	reportID := c.Param("id")
	c.Set(middleware.ReportIDKey, reportID)

	var req updateStatusRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid query", nil)
		return
	}
	if req.Status == "" && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", nil)
			return
		}
	}
	if strings.TrimSpace(req.Status) == "" {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "status is required", nil)
		return
	}

	report, err := h.Svc.UpdateStatus(h.requestContext(c), reportID, req.Status, req.Error)
	if err != nil {
		h.writeError(c, err, "failed to update report status")
		return
	}
	c.Set(middleware.StatusTransitionKey, "->"+report.Status)
	respond.OK(c, toResponse(report, h.Svc.DownloadURL(c.Request.Context(), report), false))
}

func (h *Handler) update(c *gin.Context) {
	reportID := c.Param("id")
	c.Set(middleware.ReportIDKey, reportID)

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", nil)
		return
	}

	report, err := h.Svc.Update(h.requestContext(c), reportID, Patch{
		Status:   req.Status,
		Analysis: req.Analysis,
		Error:    req.Error,
	})
	if err != nil {
		h.writeError(c, err, "failed to update report")
		return
	}
	c.Set(middleware.StatusTransitionKey, "->"+report.Status)
	respond.OK(c, toResponse(report, h.Svc.DownloadURL(c.Request.Context(), report), false))
}

func (h *Handler) delete(c *gin.Context) {
	reportID := c.Param("id")
	c.Set(middleware.ReportIDKey, reportID)

	if err := h.Svc.Delete(h.requestContext(c), reportID); err != nil {
		h.writeError(c, err, "failed to delete report")
		return
	}
	respond.OK(c, gin.H{"message": "Report deleted successfully"})
}

func (h *Handler) requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "report not found", nil)
	case errors.Is(err, ErrInvalidStatus):
		respond.Error(c, http.StatusConflict, respond.CodeInvalidStatus, err.Error(), nil)
	case errors.Is(err, ErrUnsupportedFileType):
		respond.Error(c, http.StatusBadRequest, respond.CodeUnsupportedType, err.Error(), nil)
	case errors.Is(err, ErrFileTooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodeFileTooLarge, err.Error(), gin.H{"maxBytes": h.Svc.maxUpload()})
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyFile):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, fallback, sanitizeError(err))
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
