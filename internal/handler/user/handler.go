package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medledger/medledger-api/internal/handler"
	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/service/user"
)

type Handler struct {
	svc *user.Service
}

func NewHandler(svc *user.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.POST("", h.Register)
		users.GET("/check/:address", h.CheckAddress)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	u, err := h.svc.Register(c.Request.Context(), req.Address, req.Role)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(u))
}

func (h *Handler) CheckAddress(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("address is required"))
		return
	}

	role, exists, err := h.svc.Exists(c.Request.Context(), address)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(&model.CheckAddressResponse{
		Exists: exists,
		Role:   role,
	}))
}
