package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medledger/medledger-api/internal/handler"
	"github.com/medledger/medledger-api/internal/middleware"
	"github.com/medledger/medledger-api/internal/model"
	"github.com/medledger/medledger-api/internal/service/auth"
)

type Handler struct {
	svc          *auth.Service
	cookieMaxAge int
}

func NewHandler(svc *auth.Service, cookieMaxAge int) *Handler {
	return &Handler{
		svc:          svc,
		cookieMaxAge: cookieMaxAge,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
	}
}

// Login issues a session for a self-asserted wallet address. The token is
// returned in the body and set as an HTTP-only cookie for browser clients.
func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Address, req.Role)
	if err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("address is not registered with that role"))
		return
	}

	c.SetCookie(middleware.SessionCookie, tokens.Token, h.cookieMaxAge, "/", "", false, true)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(tokens))
}

func (h *Handler) Logout(c *gin.Context) {
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, handler.NewSuccessResponse("logged out"))
}
