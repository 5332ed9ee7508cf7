package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classpix/classpix/internal/approval"
	"github.com/classpix/classpix/internal/common"
	"github.com/classpix/classpix/internal/config"
	"github.com/classpix/classpix/internal/httpapi/middleware"
	"github.com/classpix/classpix/internal/models"
)

type Handler struct {
	DB    *gorm.DB
	Cfg   config.Config
	Repo  *approval.Repo
	Svc   *approval.Service
	Batch *approval.BatchRunner
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *approval.Service, batch *approval.BatchRunner) *Handler {
	return &Handler{
		DB:    db,
		Cfg:   cfg,
		Repo:  approval.NewRepo(db),
		Svc:   svc,
		Batch: batch,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// currentUser loads the authenticated user and enforces the allowed roles.
// Admins pass every role gate.
func (h *Handler) currentUser(c *gin.Context, roles ...models.Role) (*models.User, bool) {
	user, err := h.Repo.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40102, "user not found")
		return nil, false
	}
	if user.Role == models.RoleAdmin {
		return user, true
	}
	for _, r := range roles {
		if user.Role == r {
			return user, true
		}
	}
	common.Fail(c, http.StatusForbidden, 40300, "insufficient role")
	return nil, false
}

// fail translates domain errors into HTTP responses.
func fail(c *gin.Context, err error) {
	var (
		ve *approval.ValidationError
		ce *approval.ConflictError
		nf *approval.NotFoundError
		ic *approval.InsufficientCreditsError
	)
	switch {
	case errors.As(err, &ve):
		common.Fail(c, http.StatusBadRequest, 40000, ve.Error())
	case errors.As(err, &ce):
		common.Fail(c, http.StatusConflict, 40900, ce.Error())
	case errors.As(err, &nf):
		common.Fail(c, http.StatusNotFound, 40400, nf.Error())
	case errors.As(err, &ic):
		common.Fail(c, http.StatusPaymentRequired, 40201, ic.Error())
	default:
		common.Fail(c, http.StatusInternalServerError, 50000, "internal server error")
	}
}
