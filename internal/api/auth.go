package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-tasks/internal/auth"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

type registerRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email" binding:"omitempty,email"`
	Password string      `json:"password"`
	Role     schema.Role `json:"role" binding:"omitempty,role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	session, err := h.Auth.Register(c.Request.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, session)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	session, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, session)
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	token, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"accessToken": token})
}

func (h *Handler) Profile(c *gin.Context) {
	profile, err := h.Auth.Profile(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, profile)
}
