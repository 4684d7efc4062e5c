package record

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medledger/medledger-api/internal/handler"
	"github.com/medledger/medledger-api/internal/middleware"
	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/service/access"
	"github.com/medledger/medledger-api/internal/service/record"
)

// UploadLimits bound uploads at the HTTP boundary; the store itself does
// not constrain file size or type.
type UploadLimits struct {
	MaxSize     int64
	AllowedExts []string
}

func DefaultUploadLimits() UploadLimits {
	return UploadLimits{
		MaxSize:     10 << 20, // 10MB
		AllowedExts: []string{".pdf", ".png", ".jpg", ".jpeg", ".gif"},
	}
}

type Handler struct {
	svc    *record.Service
	access *access.Service
	limits UploadLimits
}

func NewHandler(svc *record.Service, accessSvc *access.Service, limits UploadLimits) *Handler {
	return &Handler{
		svc:    svc,
		access: accessSvc,
		limits: limits,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	records := r.Group("/records")
	{
		records.POST("", h.Upload)
		records.GET("", h.List)
		records.GET("/view/:id", h.View)
		records.GET("/download/:id", h.Download)
		records.DELETE("/:id", h.Delete)
	}
}

func (h *Handler) Upload(c *gin.Context) {
	var req model.CreateRecordRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	caller := middleware.SessionAddress(c)
	if !strings.EqualFold(req.PatientAddress, caller) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("records can only be uploaded to your own address"))
		return
	}

	recordDate, err := parseRecordDate(req.RecordDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record date"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("file is required"))
		return
	}

	if fileHeader.Size > h.limits.MaxSize {
		c.JSON(http.StatusRequestEntityTooLarge, handler.NewErrorResponse(
			fmt.Sprintf("file exceeds %d bytes", h.limits.MaxSize)))
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !h.extAllowed(ext) {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unsupported file type"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("failed to read upload"))
		return
	}
	defer f.Close()

	rec, err := h.svc.Create(c.Request.Context(), &record.UploadInput{
		Title:          req.Title,
		RecordType:     req.RecordType,
		RecordDate:     recordDate,
		PatientAddress: caller,
		FileName:       fileHeader.Filename,
		MimeType:       fileHeader.Header.Get("Content-Type"),
		Size:           fileHeader.Size,
		Content:        f,
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rec))
}

// List returns a patient's records. The caller must be that patient, or a
// doctor holding an active grant from them; a doctor only sees the records
// the grants actually reference.
func (h *Handler) List(c *gin.Context) {
	patientAddress := c.Query("patientAddress")
	if patientAddress == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("patientAddress is required"))
		return
	}

	caller := middleware.SessionAddress(c)

	if strings.EqualFold(patientAddress, caller) {
		records, err := h.svc.ListByPatient(c.Request.Context(), patientAddress)
		if err != nil {
			handler.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
		return
	}

	if !strings.EqualFold(middleware.SessionRole(c), model.RoleDoctor) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("not authorized for this patient"))
		return
	}

	allowed, err := h.grantedRecordIDs(c, caller, patientAddress)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if len(allowed) == 0 {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("no active grant from this patient"))
		return
	}

	records, err := h.svc.ListByPatient(c.Request.Context(), patientAddress)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	shared := make([]*model.MedicalRecord, 0, len(records))
	for _, rec := range records {
		if allowed[rec.ID] {
			shared = append(shared, rec)
		}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(shared))
}

func (h *Handler) View(c *gin.Context) {
	h.serveFile(c, "inline")
}

func (h *Handler) Download(c *gin.Context) {
	h.serveFile(c, "attachment")
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record ID"))
		return
	}

	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	if !strings.EqualFold(rec.PatientAddress, middleware.SessionAddress(c)) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("only the owning patient can delete a record"))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": id}))
}

func (h *Handler) serveFile(c *gin.Context, disposition string) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record ID"))
		return
	}

	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	if !h.authorized(c, rec) {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("not authorized for this record"))
		return
	}

	rec, f, err := h.svc.Open(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	defer f.Close()

	mimeType := rec.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	c.DataFromReader(http.StatusOK, rec.FileSize, mimeType, f, map[string]string{
		"Content-Disposition": fmt.Sprintf(`%s; filename=%q`, disposition, rec.FileName),
	})
}

// authorized allows the owning patient, or a doctor whose active grant from
// that patient contains this record id.
func (h *Handler) authorized(c *gin.Context, rec *model.MedicalRecord) bool {
	caller := middleware.SessionAddress(c)
	if strings.EqualFold(rec.PatientAddress, caller) {
		return true
	}
	if !strings.EqualFold(middleware.SessionRole(c), model.RoleDoctor) {
		return false
	}

	ok, err := h.access.HasAccess(c.Request.Context(), caller, rec.PatientAddress, rec.ID)
	if err != nil {
		return false
	}
	return ok
}

func (h *Handler) grantedRecordIDs(c *gin.Context, doctor, patient string) (map[int64]bool, error) {
	grants, err := h.access.ListByDoctor(c.Request.Context(), doctor)
	if err != nil {
		return nil, err
	}

	allowed := make(map[int64]bool)
	for _, g := range grants {
		if !g.Active || !strings.EqualFold(g.PatientAddress, patient) {
			continue
		}
		for _, id := range g.RecordIDs {
			allowed[id] = true
		}
	}
	return allowed, nil
}

func (h *Handler) extAllowed(ext string) bool {
	for _, allowed := range h.limits.AllowedExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

func parseRecordDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
