package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classpix/classpix/internal/common"
	"github.com/classpix/classpix/internal/models"
)

type submitPromptReq struct {
	Content string `json:"content"`
	// Older clients send "prompt".
	Prompt string `json:"prompt"`
}

func (h *Handler) SubmitPrompt(c *gin.Context) {
	student, ok := h.currentUser(c, models.RoleStudent)
	if !ok {
		return
	}

	var req submitPromptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	content := req.Content
	if content == "" {
		content = req.Prompt
	}

	p, err := h.Svc.SubmitPrompt(c.Request.Context(), student.ID, content)
	if err != nil {
		fail(c, err)
		return
	}
	common.OK(c, gin.H{"prompt_id": p.PromptID})
}

// StudentStatus returns the student's pending prompts and approved images.
func (h *Handler) StudentStatus(c *gin.Context) {
	student, ok := h.currentUser(c, models.RoleStudent)
	if !ok {
		return
	}

	prompts, err := h.Repo.ListPendingPromptsByStudent(c.Request.Context(), student.ID)
	if err != nil {
		fail(c, err)
		return
	}
	images, err := h.Repo.ListApprovedImagesByStudent(c.Request.Context(), student.ID)
	if err != nil {
		fail(c, err)
		return
	}

	common.OK(c, gin.H{
		"pending_prompts": prompts,
		"approved_images": images,
	})
}
