// Package runs exposes the asynchronous import and discovery endpoints.
package runs

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/oak/pkg/context"
	"github.com/Ramsey-B/oak/pkg/jobs"
	"github.com/Ramsey-B/oak/pkg/models"
)

// HeaderActorID carries the caller recorded on the run.
const HeaderActorID = "X-Actor-ID"

// RunReader loads a run by id.
type RunReader interface {
	Get(ctx context.Context, id string) (*models.ImportRun, error)
}

type Handler struct {
	dispatcher jobs.Dispatcher
	runs       RunReader
	logger     ectologger.Logger
}

type AcceptedResponse struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
}

func NewHandler(dispatcher jobs.Dispatcher, runs RunReader, logger ectologger.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		runs:       runs,
		logger:     logger,
	}
}

// Register registers run routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/imports", h.createImport)
	g.POST("/discoveries", h.createDiscovery)
	g.GET("/runs/:id", h.getRun)
}

func (h *Handler) createImport(c echo.Context) error {
	var job jobs.ImportJob
	if err := c.Bind(&job); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if job.ActorID == "" {
		job.ActorID = c.Request().Header.Get(HeaderActorID)
	}
	return h.dispatch(c, jobs.JobTypeFullTree, job.FamilyTreeID, job)
}

func (h *Handler) createDiscovery(c echo.Context) error {
	var job jobs.DiscoveryJob
	if err := c.Bind(&job); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if job.ActorID == "" {
		job.ActorID = c.Request().Header.Get(HeaderActorID)
	}
	return h.dispatch(c, jobs.JobTypeDiscovery, job.FamilyTreeID, job)
}

func (h *Handler) dispatch(c echo.Context, jobType, treeID string, payload any) error {
	ctx := appctx.SetFamilyTreeID(c.Request().Context(), treeID)

	id, err := h.dispatcher.Dispatch(ctx, jobType, payload)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidJob) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id":   id,
		"job_type": jobType,
	}).Info("Job accepted")
	return c.JSON(http.StatusAccepted, AcceptedResponse{JobID: id, JobType: jobType})
}

func (h *Handler) getRun(c echo.Context) error {
	run, err := h.runs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}
