package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classpix/classpix/internal/approval"
	"github.com/classpix/classpix/internal/common"
	"github.com/classpix/classpix/internal/models"
)

type grantCreditsReq struct {
	TeacherID uint64 `json:"teacher_id"`
	Amount    int    `json:"amount"`
	Reason    string `json:"reason"`
}

func (h *Handler) GrantCredits(c *gin.Context) {
	admin, ok := h.currentUser(c, models.RoleAdmin)
	if !ok {
		return
	}

	var req grantCreditsReq
	if err := c.ShouldBindJSON(&req); err != nil || req.TeacherID == 0 {
		common.Fail(c, http.StatusBadRequest, 10001, "teacher_id and amount required")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "credit grant"
	}

	if err := h.Repo.GrantCredits(c.Request.Context(), req.TeacherID, req.Amount, reason, admin.ID); err != nil {
		fail(c, err)
		return
	}
	common.OK(c, gin.H{"teacher_id": req.TeacherID, "amount": req.Amount})
}

// UsageStats summarizes platform activity for the admin dashboard.
func (h *Handler) UsageStats(c *gin.Context) {
	if _, ok := h.currentUser(c, models.RoleAdmin); !ok {
		return
	}

	ctx := c.Request.Context()
	var totalPrompts, totalImages, pendingPrompts, pendingImages int64
	if err := h.DB.WithContext(ctx).Model(&approval.Prompt{}).Count(&totalPrompts).Error; err != nil {
		fail(c, err)
		return
	}
	_ = h.DB.WithContext(ctx).Model(&approval.Prompt{}).
		Where("status = ?", approval.PromptPending).Count(&pendingPrompts).Error
	_ = h.DB.WithContext(ctx).Model(&approval.Image{}).Count(&totalImages).Error
	_ = h.DB.WithContext(ctx).Model(&approval.Image{}).
		Where("status = ?", approval.ImagePending).Count(&pendingImages).Error

	var spent struct{ Total int }
	_ = h.DB.WithContext(ctx).Model(&models.CreditEntry{}).
		Select("COALESCE(SUM(-amount), 0) AS total").
		Where("amount < 0").
		Scan(&spent).Error

	common.OK(c, gin.H{
		"total_prompts":   totalPrompts,
		"pending_prompts": pendingPrompts,
		"total_images":    totalImages,
		"pending_images":  pendingImages,
		"credits_spent":   spent.Total,
	})
}
