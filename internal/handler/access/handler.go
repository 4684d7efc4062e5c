package access

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medledger/medledger-api/internal/handler"
	"github.com/medledger/medledger-api/internal/middleware"
	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/service/access"
)

type Handler struct {
	svc *access.Service
}

func NewHandler(svc *access.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	grants := r.Group("/access")
	{
		grants.POST("", h.Grant)
		grants.GET("", h.ListByPatient)
		grants.GET("/doctor", h.ListByDoctor)
		grants.GET("/records", h.AccessibleRecords)
		grants.DELETE("/:id", h.Revoke)
	}
}

func (h *Handler) Grant(c *gin.Context) {
	var req model.CreateGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if !strings.EqualFold(req.PatientAddress, middleware.SessionAddress(c)) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("grants can only be created for your own records"))
		return
	}

	grant, err := h.svc.Grant(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(grant))
}

func (h *Handler) ListByPatient(c *gin.Context) {
	patientAddress := c.Query("patientAddress")
	if patientAddress == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("patientAddress is required"))
		return
	}
	if !strings.EqualFold(patientAddress, middleware.SessionAddress(c)) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("not authorized for this patient"))
		return
	}

	grants, err := h.svc.ListByPatient(c.Request.Context(), patientAddress)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(grants))
}

func (h *Handler) ListByDoctor(c *gin.Context) {
	doctorAddress := c.Query("doctorAddress")
	if doctorAddress == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("doctorAddress is required"))
		return
	}
	if !strings.EqualFold(doctorAddress, middleware.SessionAddress(c)) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("not authorized for this doctor"))
		return
	}

	grants, err := h.svc.ListByDoctor(c.Request.Context(), doctorAddress)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(grants))
}

// AccessibleRecords returns the doctor's active grants and the records they
// reference. The evaluator returns the union of the referenced patients'
// records; the handler intersects with the granted ids before rendering.
func (h *Handler) AccessibleRecords(c *gin.Context) {
	doctorAddress := c.Query("doctorAddress")
	if doctorAddress == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("doctorAddress is required"))
		return
	}
	if !strings.EqualFold(doctorAddress, middleware.SessionAddress(c)) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("not authorized for this doctor"))
		return
	}

	view, err := h.svc.AccessibleRecordsForDoctor(c.Request.Context(), doctorAddress)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	granted := make(map[int64]bool)
	for _, g := range view.Grants {
		for _, id := range g.RecordIDs {
			granted[id] = true
		}
	}

	shared := make([]*model.MedicalRecord, 0, len(view.Records))
	for _, rec := range view.Records {
		if granted[rec.ID] {
			shared = append(shared, rec)
		}
	}
	view.Records = shared

	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}

func (h *Handler) Revoke(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid grant ID"))
		return
	}

	grant, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	if !strings.EqualFold(grant.PatientAddress, middleware.SessionAddress(c)) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("only the granting patient can revoke"))
		return
	}

	revoked, err := h.svc.Revoke(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if !revoked {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("grant not found"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"revoked": id}))
}
