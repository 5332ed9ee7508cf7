package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/classpix/classpix/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreatePrompt(ctx context.Context, p *Prompt) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) GetPrompt(ctx context.Context, promptID string) (*Prompt, error) {
	var p Prompt
	if err := r.db.WithContext(ctx).
		Where("prompt_id = ?", promptID).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "prompt", ID: promptID}
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) SavePrompt(ctx context.Context, p *Prompt) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// HasPendingPrompt reports whether the student already has a prompt waiting
// for review.
func (r *Repo) HasPendingPrompt(ctx context.Context, studentID uint64) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&Prompt{}).
		Where("student_id = ? AND status = ?", studentID, PromptPending).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// ListPendingPrompts returns pending prompts oldest-first. An empty
// studentIDs slice means no student filter (admin view); promptIDs narrows
// the result to an explicit selection.
func (r *Repo) ListPendingPrompts(ctx context.Context, studentIDs []uint64, promptIDs []string) ([]Prompt, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", PromptPending).
		Order("created_at ASC")
	if len(studentIDs) > 0 {
		q = q.Where("student_id IN ?", studentIDs)
	}
	if len(promptIDs) > 0 {
		q = q.Where("prompt_id IN ?", promptIDs)
	}
	var prompts []Prompt
	if err := q.Find(&prompts).Error; err != nil {
		return nil, err
	}
	return prompts, nil
}

// MarkPromptProcessing flips a single pending prompt to processing. Returns
// false when the prompt was concurrently reviewed and is no longer pending.
func (r *Repo) MarkPromptProcessing(ctx context.Context, promptID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Prompt{}).
		Where("prompt_id = ? AND status = ?", promptID, PromptPending).
		Update("status", PromptProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ListPendingPromptsByStudent(ctx context.Context, studentID uint64) ([]Prompt, error) {
	var prompts []Prompt
	if err := r.db.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, PromptPending).
		Order("created_at DESC").
		Find(&prompts).Error; err != nil {
		return nil, err
	}
	return prompts, nil
}

func (r *Repo) CreateImage(ctx context.Context, img *Image) error {
	return r.db.WithContext(ctx).Create(img).Error
}

func (r *Repo) GetImage(ctx context.Context, imageID string) (*Image, error) {
	var img Image
	if err := r.db.WithContext(ctx).
		Where("image_id = ?", imageID).
		First(&img).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "image", ID: imageID}
		}
		return nil, err
	}
	return &img, nil
}

func (r *Repo) SaveImage(ctx context.Context, img *Image) error {
	return r.db.WithContext(ctx).Save(img).Error
}

func (r *Repo) ListPendingImages(ctx context.Context, studentIDs []uint64) ([]Image, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", ImagePending).
		Order("created_at ASC")
	if len(studentIDs) > 0 {
		q = q.Where("student_id IN ?", studentIDs)
	}
	var images []Image
	if err := q.Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *Repo) ListApprovedImagesByStudent(ctx context.Context, studentID uint64) ([]Image, error) {
	var images []Image
	if err := r.db.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, ImageApproved).
		Order("created_at DESC").
		Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *Repo) GetUser(ctx context.Context, userID uint64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "user", ID: fmt.Sprint(userID)}
		}
		return nil, err
	}
	return &u, nil
}

// StudentIDsForTeacher lists the ids of students assigned to a teacher.
func (r *Repo) StudentIDsForTeacher(ctx context.Context, teacherID uint64) ([]uint64, error) {
	var ids []uint64
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND teacher_id = ?", models.RoleStudent, teacherID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// DebitCredits atomically subtracts cost from the teacher's balance and
// appends the matching ledger entry. The conditional update is the
// authoritative guard: two concurrent debits can never overdraw.
func (r *Repo) DebitCredits(ctx context.Context, teacherID uint64, cost int, reason string) error {
	if cost <= 0 {
		return &ValidationError{Msg: "debit cost must be positive"}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND credits >= ?", teacherID, cost).
			UpdateColumn("credits", gorm.Expr("credits - ?", cost))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var u models.User
			if err := tx.First(&u, teacherID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &NotFoundError{Entity: "user", ID: fmt.Sprint(teacherID)}
				}
				return err
			}
			return &InsufficientCreditsError{Have: u.Credits, Need: cost}
		}
		return tx.Create(&models.CreditEntry{
			UserID:    teacherID,
			Amount:    -cost,
			Reason:    reason,
			Timestamp: time.Now(),
		}).Error
	})
}

// GrantCredits adds amount to a teacher's balance on behalf of an admin.
func (r *Repo) GrantCredits(ctx context.Context, teacherID uint64, amount int, reason string, adminID uint64) error {
	if amount <= 0 {
		return &ValidationError{Msg: "grant amount must be positive"}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND role = ?", teacherID, models.RoleTeacher).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "teacher", ID: fmt.Sprint(teacherID)}
		}
		return tx.Create(&models.CreditEntry{
			UserID:    teacherID,
			Amount:    amount,
			Reason:    reason,
			AdminID:   &adminID,
			Timestamp: time.Now(),
		}).Error
	})
}

// CreditHistory returns ledger entries newest-first.
func (r *Repo) CreditHistory(ctx context.Context, teacherID uint64) ([]models.CreditEntry, error) {
	var entries []models.CreditEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", teacherID).
		Order("timestamp DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteStudent removes a student account together with all of their
// prompts and images.
func (r *Repo) DeleteStudent(ctx context.Context, studentID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND role = ?", studentID, models.RoleStudent).
			Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "student", ID: fmt.Sprint(studentID)}
		}
		if err := tx.Where("student_id = ?", studentID).Delete(&Prompt{}).Error; err != nil {
			return err
		}
		return tx.Where("student_id = ?", studentID).Delete(&Image{}).Error
	})
}
