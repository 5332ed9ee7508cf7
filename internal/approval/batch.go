package approval

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classpix/classpix/internal/notify"
)

// BatchStatus is the pollable snapshot of the one active batch.
type BatchStatus struct {
	IsRunning        bool      `json:"isRunning"`
	BatchID          string    `json:"batchId,omitempty"`
	TotalJobs        int       `json:"totalJobs"`
	CompletedJobs    int       `json:"completedJobs"`
	FailedJobs       int       `json:"failedJobs"`
	StartTime        time.Time `json:"startTime,omitempty"`
	EstimatedEndTime time.Time `json:"estimatedEndTime,omitempty"`
	RemainingSeconds int       `json:"remainingSeconds"`
	Progress         float64   `json:"progress"`
}

// BatchAccept is the immediate reply to a batch request; generation runs on
// in the background.
type BatchAccept struct {
	BatchID  string   `json:"batchId"`
	Accepted int      `json:"accepted"`
	Skipped  []string `json:"skipped,omitempty"`
}

// BatchRunner drives approval-equivalent processing over a teacher-selected
// set of prompts, sequentially, surviving individual failures. One batch
// runs at a time.
type BatchRunner struct {
	svc *Service

	mu     sync.Mutex
	status BatchStatus
}

func NewBatchRunner(svc *Service) *BatchRunner {
	return &BatchRunner{svc: svc}
}

// Run validates and reserves the requested prompts, debits the full batch
// cost, and kicks off background processing. It returns as soon as the
// batch is accepted.
func (b *BatchRunner) Run(ctx context.Context, teacherID uint64, promptIDs []string) (*BatchAccept, error) {
	teacher, err := b.svc.repo.GetUser(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	studentIDs, err := b.svc.scopeStudents(ctx, teacher)
	if err != nil {
		return nil, err
	}
	prompts, err := b.svc.repo.ListPendingPrompts(ctx, studentIDs, promptIDs)
	if err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, &NotFoundError{Entity: "pending prompts"}
	}

	if teacher.Credits < len(prompts) {
		return nil, &InsufficientCreditsError{Have: teacher.Credits, Need: len(prompts)}
	}

	b.mu.Lock()
	if b.status.IsRunning {
		b.mu.Unlock()
		return nil, &ConflictError{Msg: "a batch is already running"}
	}
	b.status = BatchStatus{IsRunning: true}
	b.mu.Unlock()

	// Reserve against concurrent single-item review. Prompts that lost the
	// race are excluded and reported, not fatal.
	accepted := prompts[:0]
	var skipped []string
	for i := range prompts {
		ok, err := b.svc.repo.MarkPromptProcessing(ctx, prompts[i].PromptID)
		if err != nil || !ok {
			skipped = append(skipped, prompts[i].PromptID)
			continue
		}
		accepted = append(accepted, prompts[i])
	}
	if len(accepted) == 0 {
		b.release()
		return nil, &ConflictError{Msg: "all selected prompts were already taken"}
	}

	reason := fmt.Sprintf("batch approval of %d prompts", len(accepted))
	if err := b.svc.repo.DebitCredits(ctx, teacherID, len(accepted), reason); err != nil {
		b.unreserve(ctx, accepted)
		b.release()
		return nil, err
	}

	batchID := uuid.New().String()
	now := time.Now()
	b.mu.Lock()
	b.status = BatchStatus{
		IsRunning: true,
		BatchID:   batchID,
		TotalJobs: len(accepted),
		StartTime: now,
	}
	b.mu.Unlock()

	jobs := make([]Prompt, len(accepted))
	copy(jobs, accepted)
	go b.process(context.WithoutCancel(ctx), teacherID, jobs)

	return &BatchAccept{BatchID: batchID, Accepted: len(accepted), Skipped: skipped}, nil
}

// Status returns a snapshot with progress and ETA derived from the pace of
// completed jobs.
func (b *BatchRunner) Status() BatchStatus {
	b.mu.Lock()
	st := b.status
	b.mu.Unlock()

	done := st.CompletedJobs + st.FailedJobs
	if st.TotalJobs > 0 {
		st.Progress = float64(done) / float64(st.TotalJobs) * 100
	}
	if st.IsRunning && done > 0 && done < st.TotalJobs {
		elapsed := time.Since(st.StartTime)
		perJob := elapsed / time.Duration(done)
		remaining := perJob * time.Duration(st.TotalJobs-done)
		st.RemainingSeconds = int(remaining.Seconds())
		st.EstimatedEndTime = time.Now().Add(remaining)
	}
	return st
}

// process walks the accepted prompts one at a time. A failure inside one
// prompt's pipeline increments the failure counter and moves on.
func (b *BatchRunner) process(ctx context.Context, teacherID uint64, prompts []Prompt) {
	defer b.release()

	outcomes := make([]notify.BatchOutcome, 0, len(prompts))
	for i := range prompts {
		err := b.processOne(ctx, teacherID, &prompts[i])
		outcome := notify.BatchOutcome{PromptID: prompts[i].PromptID, Success: err == nil}
		b.mu.Lock()
		if err == nil {
			b.status.CompletedJobs++
		} else {
			outcome.Error = err.Error()
			b.status.FailedJobs++
		}
		b.mu.Unlock()
		if err != nil {
			log.Printf("approval: batch prompt %s failed: %v", prompts[i].PromptID, err)
		}
		outcomes = append(outcomes, outcome)
	}

	b.mu.Lock()
	st := b.status
	b.mu.Unlock()
	b.svc.emit(ctx, notify.EventBatchCompleted, notify.Everyone(), notify.BatchCompleted{
		TeacherID:      teacherID,
		TotalProcessed: len(prompts),
		SuccessCount:   st.CompletedJobs,
		ErrorCount:     st.FailedJobs,
		Details:        outcomes,
	})
	log.Printf("approval: batch done total=%d success=%d failed=%d", len(prompts), st.CompletedJobs, st.FailedJobs)
}

func (b *BatchRunner) processOne(ctx context.Context, teacherID uint64, p *Prompt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			p.Status = PromptProcessed
			if saveErr := b.svc.repo.SavePrompt(ctx, p); saveErr != nil {
				log.Printf("approval: settling batch prompt %s failed: %v", p.PromptID, saveErr)
			}
			b.svc.emit(ctx, notify.EventPromptProcessed, notify.ToUser(p.StudentID), notify.PromptProcessed{
				PromptID:  p.PromptID,
				StudentID: p.StudentID,
				Status:    string(PromptProcessed),
				Message:   "an error occurred while generating the image",
			})
		}
	}()

	now := time.Now()
	p.Status = PromptApproved
	p.ReviewerID = &teacherID
	p.ReviewedAt = &now
	if err := b.svc.repo.SavePrompt(ctx, p); err != nil {
		return err
	}
	b.svc.emit(ctx, notify.EventPromptApproved, notify.ToUser(p.StudentID), notify.PromptApproved{
		PromptID:  p.PromptID,
		StudentID: p.StudentID,
	})

	return b.svc.generateForPrompt(ctx, p, true)
}

// unreserve returns reserved prompts to pending after a failed debit.
func (b *BatchRunner) unreserve(ctx context.Context, prompts []Prompt) {
	for i := range prompts {
		prompts[i].Status = PromptPending
		if err := b.svc.repo.SavePrompt(ctx, &prompts[i]); err != nil {
			log.Printf("approval: unreserving prompt %s failed: %v", prompts[i].PromptID, err)
		}
	}
}

func (b *BatchRunner) release() {
	b.mu.Lock()
	b.status.IsRunning = false
	b.mu.Unlock()
}
