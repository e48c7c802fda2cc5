package labs

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AnalyzeRequest is the body accepted by POST /analyze.
type AnalyzeRequest struct {
	Fields Record `json:"fields"`
}

// Observer is told the outcome of every analysis served over HTTP.
type Observer interface {
	ObserveAnalysis(priorities []string)
	ObserveRejection(field string)
}

type nopObserver struct{}

func (nopObserver) ObserveAnalysis([]string) {}
func (nopObserver) ObserveRejection(string)  {}

type Handler struct {
	svc      *Service
	observer Observer
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, observer: nopObserver{}}
}

// WithObserver sets the observer notified after each analysis.
func (h *Handler) WithObserver(o Observer) *Handler {
	if o == nil {
		o = nopObserver{}
	}
	h.observer = o
	return h
}

// RegisterRoutes mounts the analyzer on g. Middleware in m applies to the
// analyzer route only.
func (h *Handler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.POST("/analyze", h.Analyze, m...)
}

func (h *Handler) Analyze(c echo.Context) error {
	logger := zerolog.Ctx(c.Request().Context())

	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if he.Code == http.StatusRequestEntityTooLarge {
				return he
			}
			return echo.NewHTTPError(http.StatusBadRequest, he.Message)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Fields == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fields is required")
	}

	result, err := h.svc.Analyze(req.Fields)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			logger.Warn().Str("field", ve.Field).Str("key", ve.Key).Msg("rejected lab values")
			h.observer.ObserveRejection(ve.Field)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	priorities := make([]string, len(result.Recommendations))
	for i, r := range result.Recommendations {
		priorities[i] = string(r.Priority)
	}
	h.observer.ObserveAnalysis(priorities)

	logger.Debug().Int("recommendations", len(result.Recommendations)).Msg("lab values analyzed")
	return c.JSON(http.StatusOK, result)
}
