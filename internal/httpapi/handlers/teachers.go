package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classpix/classpix/internal/approval"
	"github.com/classpix/classpix/internal/common"
	"github.com/classpix/classpix/internal/models"
)

func (h *Handler) PendingPrompts(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}
	prompts, err := h.Svc.PendingPromptsForTeacher(c.Request.Context(), teacher)
	if err != nil {
		fail(c, err)
		return
	}
	common.OK(c, gin.H{"prompts": prompts})
}

func (h *Handler) PendingImages(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}
	images, err := h.Svc.PendingImagesForTeacher(c.Request.Context(), teacher)
	if err != nil {
		fail(c, err)
		return
	}
	common.OK(c, gin.H{"images": images})
}

type reviewReq struct {
	PromptID        string `json:"prompt_id"`
	ImageID         string `json:"image_id"`
	Decision        string `json:"decision"`
	RejectionReason string `json:"rejection_reason"`
}

func (h *Handler) ReviewPrompt(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}

	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil || req.PromptID == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "prompt_id required")
		return
	}

	err := h.Svc.ReviewPrompt(c.Request.Context(), req.PromptID, teacher.ID,
		approval.Decision(req.Decision), req.RejectionReason)
	if err != nil {
		fail(c, err)
		return
	}
	common.OK(c, gin.H{"prompt_id": req.PromptID, "decision": req.Decision})
}

func (h *Handler) ReviewImage(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}

	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageID == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "image_id required")
		return
	}

	err := h.Svc.ReviewImage(c.Request.Context(), req.ImageID, teacher.ID,
		approval.Decision(req.Decision), req.RejectionReason)
	if err != nil {
		fail(c, err)
		return
	}
	common.OK(c, gin.H{"image_id": req.ImageID, "decision": req.Decision})
}

type batchReq struct {
	PromptIDs []string `json:"prompt_ids"`
}

// RunBatch accepts a set of pending prompts for bulk approval and responds
// as soon as the batch is admitted; generation continues in the background
// and is observable via BatchStatus.
func (h *Handler) RunBatch(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}

	var req batchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	accept, err := h.Batch.Run(c.Request.Context(), teacher.ID, req.PromptIDs)
	if err != nil {
		fail(c, err)
		return
	}
	common.Accepted(c, accept)
}

func (h *Handler) BatchStatus(c *gin.Context) {
	if _, ok := h.currentUser(c, models.RoleTeacher); !ok {
		return
	}
	common.OK(c, h.Batch.Status())
}

func (h *Handler) Credits(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}
	common.OK(c, gin.H{"credits": teacher.Credits})
}

func (h *Handler) CreditHistory(c *gin.Context) {
	teacher, ok := h.currentUser(c, models.RoleTeacher)
	if !ok {
		return
	}
	history, err := h.Repo.CreditHistory(c.Request.Context(), teacher.ID)
	if err != nil {
		fail(c, err)
		return
	}
	common.OK(c, gin.H{"credits": teacher.Credits, "history": history})
}
