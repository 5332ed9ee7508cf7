package approval

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/classpix/classpix/internal/models"
	"github.com/classpix/classpix/internal/notify"
)

// ImageGenerator produces an image URL for a prompt. Implementations never
// surface provider failures; the returned error is ctx cancellation only.
type ImageGenerator interface {
	Enqueue(ctx context.Context, prompt string, isBatch bool) (string, error)
}

// SafetyClassifier labels a generated image.
type SafetyClassifier interface {
	Classify(ctx context.Context, imageURL string) SafetyLevel
}

// Service is the authoritative logic for prompt and image transitions and
// the credit accounting tied to them.
type Service struct {
	repo     *Repo
	gen      ImageGenerator
	classify SafetyClassifier
	events   notify.Publisher
}

func NewService(repo *Repo, gen ImageGenerator, classify SafetyClassifier, events notify.Publisher) *Service {
	return &Service{repo: repo, gen: gen, classify: classify, events: events}
}

// SubmitPrompt records a student's request and alerts their teacher.
func (s *Service) SubmitPrompt(ctx context.Context, studentID uint64, content string) (*Prompt, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ValidationError{Msg: "prompt content is required"}
	}

	student, err := s.repo.GetUser(ctx, studentID)
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.HasPendingPrompt(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, &ConflictError{Msg: "student already has a prompt awaiting review"}
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	p := &Prompt{
		PromptID:  id,
		Content:   content,
		StudentID: studentID,
		Status:    PromptPending,
	}
	if err := s.repo.CreatePrompt(ctx, p); err != nil {
		return nil, err
	}

	to := notify.Everyone()
	if student.TeacherID != nil {
		to = notify.ToUser(*student.TeacherID)
	}
	s.emit(ctx, notify.EventNewPromptSubmitted, to, notify.NewPromptSubmitted{
		PromptID:       p.PromptID,
		StudentID:      studentID,
		StudentName:    student.Name,
		ContentPreview: preview(content),
	})

	return p, nil
}

// ReviewPrompt applies a teacher's decision to a pending prompt. Approval
// debits one credit and drives the prompt through generation; a credit
// shortfall leaves the prompt pending so the review can be retried.
func (s *Service) ReviewPrompt(ctx context.Context, promptID string, teacherID uint64, decision Decision, rejectionReason string) error {
	if !decision.Valid() {
		return &ValidationError{Msg: "decision must be approved or rejected"}
	}

	p, err := s.repo.GetPrompt(ctx, promptID)
	if err != nil {
		return err
	}
	if !p.Status.Reviewable() {
		return &ConflictError{Msg: "prompt has already been reviewed"}
	}

	if decision == DecisionRejected {
		now := time.Now()
		p.Status = PromptRejected
		p.ReviewerID = &teacherID
		p.ReviewedAt = &now
		if rejectionReason != "" {
			p.RejectionReason = &rejectionReason
		}
		if err := s.repo.SavePrompt(ctx, p); err != nil {
			return err
		}
		s.emit(ctx, notify.EventPromptRejected, notify.ToUser(p.StudentID), notify.PromptRejected{
			PromptID:        p.PromptID,
			StudentID:       p.StudentID,
			RejectionReason: rejectionReason,
		})
		return nil
	}

	// Guarded pre-check; the conditional decrement below is authoritative.
	teacher, err := s.repo.GetUser(ctx, teacherID)
	if err != nil {
		return err
	}
	if teacher.Credits < 1 {
		return &InsufficientCreditsError{Have: teacher.Credits, Need: 1}
	}
	if err := s.repo.DebitCredits(ctx, teacherID, 1, "image generation: "+preview(p.Content)); err != nil {
		return err
	}

	now := time.Now()
	p.Status = PromptApproved
	p.ReviewerID = &teacherID
	p.ReviewedAt = &now
	if err := s.repo.SavePrompt(ctx, p); err != nil {
		return err
	}
	s.emit(ctx, notify.EventPromptApproved, notify.ToUser(p.StudentID), notify.PromptApproved{
		PromptID:  p.PromptID,
		StudentID: p.StudentID,
	})

	if err := s.generateForPrompt(ctx, p, false); err != nil {
		// The queue's contract makes this a defensive path: mark the prompt
		// processed without an image. The debited credit is not refunded;
		// approval consumes the credit regardless of outcome.
		log.Printf("approval: generation pipeline failed for prompt %s: %v", p.PromptID, err)
		p.Status = PromptProcessed
		if saveErr := s.repo.SavePrompt(ctx, p); saveErr != nil {
			log.Printf("approval: marking prompt %s processed failed: %v", p.PromptID, saveErr)
		}
		s.emit(ctx, notify.EventPromptProcessed, notify.ToUser(p.StudentID), notify.PromptProcessed{
			PromptID:  p.PromptID,
			StudentID: p.StudentID,
			Status:    string(PromptProcessed),
			Message:   "an error occurred while generating the image",
		})
	}
	return nil
}

// generateForPrompt runs generation, classification, and image creation for
// an approved prompt, leaving it processed with a linked pending image.
func (s *Service) generateForPrompt(ctx context.Context, p *Prompt, isBatch bool) error {
	p.Status = PromptProcessing
	if err := s.repo.SavePrompt(ctx, p); err != nil {
		return err
	}

	url, err := s.gen.Enqueue(ctx, p.Content, isBatch)
	if err != nil {
		return err
	}
	level := s.classify.Classify(ctx, url)

	imageID, err := NewID()
	if err != nil {
		return err
	}
	img := &Image{
		ImageID:       imageID,
		Path:          url,
		IsExternalURL: true,
		PromptID:      p.PromptID,
		StudentID:     p.StudentID,
		Status:        ImagePending,
		SafetyLevel:   level,
	}
	if err := s.repo.CreateImage(ctx, img); err != nil {
		return err
	}

	p.GeneratedImageID = &img.ImageID
	p.Status = PromptProcessed
	if err := s.repo.SavePrompt(ctx, p); err != nil {
		return err
	}

	to := notify.Everyone()
	if p.ReviewerID != nil {
		to = notify.ToUser(*p.ReviewerID)
	}
	studentName := ""
	if student, err := s.repo.GetUser(ctx, p.StudentID); err == nil {
		studentName = student.Name
	}
	s.emit(ctx, notify.EventImageGenerated, to, notify.ImageGenerated{
		ImageID:       img.ImageID,
		Path:          img.Path,
		IsExternalURL: img.IsExternalURL,
		PromptID:      p.PromptID,
		PromptContent: p.Content,
		StudentID:     p.StudentID,
		StudentName:   studentName,
		SafetyLevel:   string(img.SafetyLevel),
		CreatedAt:     img.CreatedAt,
	})
	return nil
}

// ReviewImage applies a teacher's decision to a generated image and settles
// the owning prompt.
func (s *Service) ReviewImage(ctx context.Context, imageID string, teacherID uint64, decision Decision, rejectionReason string) error {
	if !decision.Valid() {
		return &ValidationError{Msg: "decision must be approved or rejected"}
	}

	img, err := s.repo.GetImage(ctx, imageID)
	if err != nil {
		return err
	}
	if !img.Status.Reviewable() {
		return &ConflictError{Msg: "image has already been reviewed"}
	}

	now := time.Now()
	img.ReviewerID = &teacherID
	img.ReviewedAt = &now
	if decision == DecisionApproved {
		img.Status = ImageApproved
	} else {
		img.Status = ImageRejected
		if rejectionReason != "" {
			img.RejectionReason = &rejectionReason
		}
	}
	if err := s.repo.SaveImage(ctx, img); err != nil {
		return err
	}

	if p, err := s.repo.GetPrompt(ctx, img.PromptID); err == nil && p.Status != PromptProcessed {
		p.Status = PromptProcessed
		if err := s.repo.SavePrompt(ctx, p); err != nil {
			log.Printf("approval: settling prompt %s failed: %v", p.PromptID, err)
		}
	}

	if decision == DecisionApproved {
		s.emit(ctx, notify.EventImageApproved, notify.ToUser(img.StudentID), notify.ImageApproved{
			ImageID:   img.ImageID,
			StudentID: img.StudentID,
			ImageURL:  img.Path,
			PromptID:  img.PromptID,
		})
	} else {
		s.emit(ctx, notify.EventImageRejected, notify.ToUser(img.StudentID), notify.ImageRejected{
			ImageID:         img.ImageID,
			StudentID:       img.StudentID,
			RejectionReason: rejectionReason,
		})
	}
	return nil
}

// PendingPromptsForTeacher lists reviewable prompts oldest-first, scoped to
// the teacher's students unless the requester is an admin.
func (s *Service) PendingPromptsForTeacher(ctx context.Context, teacher *models.User) ([]Prompt, error) {
	studentIDs, err := s.scopeStudents(ctx, teacher)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPendingPrompts(ctx, studentIDs, nil)
}

// PendingImagesForTeacher lists reviewable images oldest-first with the
// same scoping as prompts.
func (s *Service) PendingImagesForTeacher(ctx context.Context, teacher *models.User) ([]Image, error) {
	studentIDs, err := s.scopeStudents(ctx, teacher)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPendingImages(ctx, studentIDs)
}

func (s *Service) scopeStudents(ctx context.Context, teacher *models.User) ([]uint64, error) {
	if teacher.Role == models.RoleAdmin {
		return nil, nil
	}
	return s.repo.StudentIDsForTeacher(ctx, teacher.ID)
}

func (s *Service) emit(ctx context.Context, name string, to notify.Recipient, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, notify.Event{Name: name, To: to, Payload: payload}); err != nil {
		log.Printf("approval: publish %s failed: %v", name, err)
	}
}

const previewLen = 30

func preview(content string) string {
	if len(content) <= previewLen {
		return content
	}
	return content[:previewLen] + "..."
}
