package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/state"
)

// submitAnalysisHandler handles POST /api/v1/analyses.
// Persists a queued analysis and returns immediately with analysis_id.
func (s *Server) submitAnalysisHandler(c *echo.Context) error {
	// 1. Bind HTTP request
	var req SubmitAnalysisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// 2. Default depth
	if req.Depth == "" {
		req.Depth = models.DepthStandard
	}

	// 3. Transform to service input
	input := models.AnalysisRequest{
		Sessions:    req.Sessions,
		Depth:       req.Depth,
		CallbackURL: req.CallbackURL,
		UserID:      extractUserID(c),
	}

	// 4. Call service
	result, err := s.analysisService.Submit(c.Request().Context(), input)
	if err != nil {
		return mapServiceError(err)
	}

	// 5. Return response
	return c.JSON(http.StatusAccepted, &AnalysisSubmittedResponse{
		AnalysisID: result.AnalysisID,
		Status:     string(result.Status),
	})
}

// bulkSubmitHandler handles POST /api/v1/analyses/bulk.
// All batches are validated before any is admitted, so a rejected bulk call
// admits nothing.
func (s *Server) bulkSubmitHandler(c *echo.Context) error {
	var req BulkSubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Depth == "" {
		req.Depth = models.DepthStandard
	}

	ids, err := s.analysisService.BulkSubmit(
		c.Request().Context(), req.Batches, req.Depth, req.CallbackURL, extractUserID(c))
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &BulkSubmittedResponse{
		AnalysisIDs: ids,
		Status:      string(models.StatusQueued),
		BatchCount:  len(ids),
	})
}

// getAnalysisHandler handles GET /api/v1/analyses/:id.
func (s *Server) getAnalysisHandler(c *echo.Context) error {
	analysisID := c.Param("id")
	if analysisID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "analysis id is required")
	}

	result, err := s.analysisService.Get(c.Request().Context(), analysisID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// getProgressHandler handles GET /api/v1/analyses/:id/progress.
func (s *Server) getProgressHandler(c *echo.Context) error {
	analysisID := c.Param("id")
	if analysisID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "analysis id is required")
	}

	progress, err := s.store.LoadProgress(c.Request().Context(), analysisID)
	if errors.Is(err, state.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no progress recorded for analysis")
	}
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, progress)
}

// cancelAnalysisHandler handles POST /api/v1/analyses/:id/cancel.
// Only in-flight analyses can be cancelled; queued and terminal ones return 409.
func (s *Server) cancelAnalysisHandler(c *echo.Context) error {
	analysisID := c.Param("id")
	if analysisID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "analysis id is required")
	}

	if s.workerPool == nil || !s.workerPool.CancelAnalysis(analysisID) {
		return echo.NewHTTPError(http.StatusConflict, "analysis is not currently processing")
	}

	return c.JSON(http.StatusAccepted, &CancelResponse{
		AnalysisID: analysisID,
		Message:    "Cancellation requested",
	})
}
