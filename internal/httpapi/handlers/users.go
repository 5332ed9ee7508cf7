package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpix/classpix/internal/auth"
	"github.com/classpix/classpix/internal/common"
	"github.com/classpix/classpix/internal/models"
)

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "username and password required")
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).
		Where("username = ?", req.Username).
		First(&user).Error; err != nil {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	now := time.Now()
	_ = h.DB.Model(&user).Update("last_login", &now).Error

	common.OK(c, gin.H{
		"token":    token,
		"id":       user.ID,
		"username": user.Username,
		"name":     user.Name,
		"role":     user.Role,
	})
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := h.currentUser(c, models.RoleStudent, models.RoleTeacher)
	if !ok {
		return
	}
	common.OK(c, user)
}

type createStudentsReq struct {
	Students []struct {
		Username string `json:"username"`
		Name     string `json:"name"`
		Password string `json:"password"`
	} `json:"students"`
}

// CreateStudents bulk-creates student accounts assigned to the requesting
// teacher. Failures are collected per student, not fatal.
func (h *Handler) CreateStudents(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}

	var req createStudentsReq
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Students) == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "at least one student is required")
		return
	}

	created := 0
	var failed []gin.H
	for _, s := range req.Students {
		if s.Username == "" || s.Name == "" {
			failed = append(failed, gin.H{"username": s.Username, "reason": "username and name required"})
			continue
		}
		password := s.Password
		if password == "" {
			password = "student123"
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			failed = append(failed, gin.H{"username": s.Username, "reason": "failed to hash password"})
			continue
		}
		teacherID := teacher.ID
		err = h.DB.WithContext(c.Request.Context()).Create(&models.User{
			Username:     s.Username,
			PasswordHash: hash,
			Name:         s.Name,
			Role:         models.RoleStudent,
			Classroom:    teacher.Classroom,
			TeacherID:    &teacherID,
		}).Error
		if err != nil {
			failed = append(failed, gin.H{"username": s.Username, "reason": "username already exists"})
			continue
		}
		created++
	}

	common.OK(c, gin.H{"created": created, "failed": failed})
}

// DeleteStudent removes one of the teacher's students together with their
// prompts and images.
func (h *Handler) DeleteStudent(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}

	studentID, ok := parseID(c, "student_id")
	if !ok {
		return
	}

	if teacher.Role != models.RoleAdmin {
		var cnt int64
		if err := h.DB.WithContext(c.Request.Context()).Model(&models.User{}).
			Where("id = ? AND teacher_id = ?", studentID, teacher.ID).
			Count(&cnt).Error; err != nil || cnt == 0 {
			common.Fail(c, http.StatusNotFound, 40400, "student not found or not yours")
			return
		}
	}

	if err := h.Repo.DeleteStudent(c.Request.Context(), studentID); err != nil {
		fail(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": studentID})
}

func parseID(c *gin.Context, param string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid id")
		return 0, false
	}
	return id, true
}
