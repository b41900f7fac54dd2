package marketdata

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"financial-reporter/internal/shared/server/respond"
	"financial-reporter/internal/shared/telemetry"
)

// rateLimitBody is returned instead of data while the provider is throttling.
type rateLimitBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler exposes the financial data and forecasting endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches market data routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/financial-data", h.list)
	rg.GET("/financial-data/:id", h.get)
	rg.GET("/forecasting/tickers", h.tickers)
	rg.GET("/forecasting/company/:ticker", h.company)
	rg.GET("/forecasting/forecast/:ticker", h.forecast)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.Svc.Find(c.Request.Context(), Query{
		Ticker:  c.Query("ticker"),
		Company: c.Query("company"),
	})
	if errors.Is(err, ErrRateLimited) {
		c.JSON(http.StatusOK, []rateLimitBody{{Error: ErrRateLimited.Error(), Message: RateLimitMessage}})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) get(c *gin.Context) {
	data, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *Handler) tickers(c *gin.Context) {
	c.JSON(http.StatusOK, h.Svc.Tickers())
}

func (h *Handler) company(c *gin.Context) {
	profile, err := h.Svc.Company(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) forecast(c *gin.Context) {
	periods := 0
	if raw := strings.TrimSpace(c.Query("periods")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, ErrInvalidPeriods.Error(), nil)
			return
		}
		if n == 0 {
			n = -1
		}
		periods = n
	}
	result, err := h.Svc.Forecast(c.Request.Context(), c.Param("ticker"), periods)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRateLimited):
		c.JSON(http.StatusOK, rateLimitBody{Error: ErrRateLimited.Error(), Message: RateLimitMessage})
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "financial data not found", nil)
	case errors.Is(err, ErrInvalidPeriods):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
	default:
		telemetry.Error("marketdata.failed", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
		respond.Error(c, http.StatusBadGateway, respond.CodeInternal, "market data unavailable", nil)
	}
}
