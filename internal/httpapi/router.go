package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classpix/classpix/internal/approval"
	"github.com/classpix/classpix/internal/common"
	"github.com/classpix/classpix/internal/config"
	"github.com/classpix/classpix/internal/httpapi/handlers"
	"github.com/classpix/classpix/internal/httpapi/middleware"
)

func NewRouter(db *gorm.DB, cfg config.Config, svc *approval.Service, batch *approval.BatchRunner) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, svc, batch)

	r.GET("/ping", h.Ping)
	r.POST("/login", h.Login)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(cfg.JWTSecret))
	api.GET("/me", h.Me)

	student := api.Group("/student")
	student.POST("/prompts", h.SubmitPrompt)
	student.GET("/status", h.StudentStatus)

	teacher := api.Group("/teacher")
	teacher.GET("/pending-prompts", h.PendingPrompts)
	teacher.GET("/pending-images", h.PendingImages)
	teacher.POST("/review-prompt", h.ReviewPrompt)
	teacher.POST("/review-image", h.ReviewImage)
	teacher.POST("/batch", h.RunBatch)
	teacher.GET("/batch-status", h.BatchStatus)
	teacher.GET("/credits", h.Credits)
	teacher.GET("/credit-history", h.CreditHistory)
	teacher.POST("/students", h.CreateStudents)
	teacher.DELETE("/students/:student_id", h.DeleteStudent)

	admin := api.Group("/admin")
	admin.POST("/credits", h.GrantCredits)
	admin.GET("/stats", h.UsageStats)

	return r
}
