package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/weftlabs/weft-backend/internal/data/repos/integrations"
	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/http/response"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/pkg/dbctx"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/services"
)

type IntegrationHandler struct {
	log        *logger.Logger
	svc        services.IntegrationService
	aggregator *pipeline.Aggregator
	groups     integrations.ParentGroupRepo
	jobs       integrations.ProcessingJobRepo
}

func NewIntegrationHandler(
	log *logger.Logger,
	svc services.IntegrationService,
	aggregator *pipeline.Aggregator,
	groups integrations.ParentGroupRepo,
	jobs integrations.ProcessingJobRepo,
) *IntegrationHandler {
	return &IntegrationHandler{
		log:        log.With("handler", "IntegrationHandler"),
		svc:        svc,
		aggregator: aggregator,
		groups:     groups,
		jobs:       jobs,
	}
}

func (h *IntegrationHandler) Create(c *gin.Context) {
	var in services.CreateIntegrationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	integration, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pkgerrors.ErrInvalidArgument) {
			status = http.StatusBadRequest
		}
		response.RespondError(c, status, "create_integration_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"integration": integration})
}

func (h *IntegrationHandler) List(c *gin.Context) {
	namespace := strings.TrimSpace(c.Query("namespace"))
	if namespace == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_namespace", errors.New("namespace query parameter required"))
		return
	}
	list, err := h.svc.List(c.Request.Context(), namespace)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_integrations_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"integrations": list})
}

// Get returns the integration with its statuses settled through the
// aggregator, so a poll always reflects the orchestrator's reality.
func (h *IntegrationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_integration_id", err)
		return
	}
	integration, groups, err := h.aggregator.Snapshot(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pkgerrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		response.RespondError(c, status, "integration_snapshot_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"integration": integration, "parent_groups": groups})
}

func (h *IntegrationHandler) Activate(c *gin.Context) {
	h.toggle(c, h.svc.Activate, "activate_integration_failed")
}

func (h *IntegrationHandler) Deactivate(c *gin.Context) {
	h.toggle(c, h.svc.Deactivate, "deactivate_integration_failed")
}

func (h *IntegrationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_integration_id", err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pkgerrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		response.RespondError(c, status, "delete_integration_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IntegrationHandler) ListParentGroups(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_integration_id", err)
		return
	}
	groups, err := h.groups.ListByIntegration(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_parent_groups_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"parent_groups": groups})
}

func (h *IntegrationHandler) ListJobs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_integration_id", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	groups, err := h.groups.ListByIntegration(dbc, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_jobs_failed", err)
		return
	}
	out := gin.H{}
	for _, group := range groups {
		jobs, err := h.jobs.ListByParentGroup(dbc, id, group.ExternalID)
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "list_jobs_failed", err)
			return
		}
		out[group.ExternalID] = jobs
	}
	response.RespondOK(c, gin.H{"jobs": out})
}

func (h *IntegrationHandler) toggle(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*types.Integration, error), code string) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_integration_id", err)
		return
	}
	integration, err := op(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pkgerrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		response.RespondError(c, status, code, err)
		return
	}
	response.RespondOK(c, gin.H{"integration": integration})
}
