package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/services"
	"github.com/nis-portal/portal-api/internal/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func requestServiceReady(c *gin.Context) bool {
	if services.RequestServiceInstance == nil {
		observability.Logger().Error("request service not initialized")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Request service unavailable"})
		return false
	}
	return true
}

// CreateRequest godoc
// @Summary Create a benefit request
// @Description Registers the claimant on first use and opens a PENDING request numbered {CODE}-{YYYY}-{NNNNN}.
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.CreateRequestInput true "Request intake"
// @Success 201 {object} models.CreateRequestResult "Request created"
// @Failure 400 {object} ErrorResponse "Missing or invalid fields"
// @Failure 401 {object} ErrorResponse "Not authenticated"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /requests [post]
func CreateRequest(c *gin.Context) {
	startTime := time.Now()
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CreateRequest")
	defer span.End()

	caller, ok := requireCaller(c)
	if !ok || !requestServiceReady(c) {
		return
	}
	span.SetAttributes(attribute.Int64("caller.id", caller.UserID))

	ctx, parseSpan := utils.TraceInputParsing(ctx, "create_request_input")
	var input models.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RecordErrorInSpan(parseSpan, err, nil)
		parseSpan.End()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	parseSpan.End()

	result, err := services.RequestServiceInstance.Create(ctx, caller, input)
	if err != nil {
		respondError(c, span, err, "Failed to create request")
		return
	}

	span.SetAttributes(attribute.String("request.number", result.RequestNumber))
	c.JSON(http.StatusCreated, result)

	observability.Logger().Debug("CreateRequest completed",
		zap.Int64("request_id", result.RequestID),
		zap.Duration("total_duration", time.Since(startTime)))
}

// ListRequests godoc
// @Summary List benefit requests
// @Description Returns every request with claimant and assignee, newest first.
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.RequestRecord "Requests"
// @Failure 401 {object} ErrorResponse "Not authenticated"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /requests [get]
func ListRequests(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListRequests")
	defer span.End()

	if !requestServiceReady(c) {
		return
	}

	records, err := services.RequestServiceInstance.List(ctx)
	if err != nil {
		respondError(c, span, err, "Failed to retrieve requests")
		return
	}
	span.SetAttributes(attribute.Int("requests.count", len(records)))

	_, responseSpan := utils.TraceResponseSerialization(ctx, "request_list")
	c.JSON(http.StatusOK, nonNil(records))
	responseSpan.End()
}

// GetRequest godoc
// @Summary Get a benefit request
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} models.RequestDetail "Request"
// @Failure 400 {object} ErrorResponse "Invalid id"
// @Failure 404 {object} ErrorResponse "Request not found"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /requests/{id} [get]
func GetRequest(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "GetRequest")
	defer span.End()

	if !requestServiceReady(c) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request id"})
		return
	}
	span.SetAttributes(attribute.Int64("request.id", id))

	detail, err := services.RequestServiceInstance.Get(ctx, id)
	if err != nil {
		respondError(c, span, err, "Failed to retrieve request")
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateRequestStatus godoc
// @Summary Update request status
// @Description Accepts PENDING, RESPONDED or CLOSED (case-insensitive). Last write wins.
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param body body models.UpdateStatusInput true "New status"
// @Success 200 {object} models.StatusUpdateResult "Status updated"
// @Failure 400 {object} ErrorResponse "Invalid status"
// @Failure 404 {object} ErrorResponse "Request not found"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /requests/{id} [put]
// @Router /requests/{id} [patch]
func UpdateRequestStatus(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "UpdateRequestStatus")
	defer span.End()

	if !requestServiceReady(c) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request id"})
		return
	}

	var input models.UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	span.SetAttributes(
		attribute.Int64("request.id", id),
		attribute.String("request.status", input.Status),
	)

	result, err := services.RequestServiceInstance.UpdateStatus(ctx, id, input.Status)
	if err != nil {
		respondError(c, span, err, "Failed to update status")
		return
	}
	c.JSON(http.StatusOK, result)
}

// AssignRequest godoc
// @Summary Assign a request
// @Description Sets the officer responsible for a request and records an ASSIGNMENT audit entry.
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param body body models.AssignInput true "Assignee"
// @Success 200 {object} models.AssignmentResult "Request assigned"
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Failure 403 {object} ErrorResponse "Missing capability"
// @Failure 404 {object} ErrorResponse "Request or user not found"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /requests/{id}/assign [put]
func AssignRequest(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "AssignRequest")
	defer span.End()

	caller, ok := requireCaller(c)
	if !ok || !requestServiceReady(c) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request id"})
		return
	}

	var input models.AssignInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	span.SetAttributes(
		attribute.Int64("request.id", id),
		attribute.Int64("assignee.id", int64(input.UserID)),
	)

	result, err := services.RequestServiceInstance.Assign(ctx, caller, id, int64(input.UserID))
	if err != nil {
		respondError(c, span, err, "Failed to assign request")
		return
	}
	c.JSON(http.StatusOK, result)
}
