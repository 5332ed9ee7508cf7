package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classpix/classpix/internal/models"
	"github.com/classpix/classpix/internal/notify"
)

// selectiveGen fails generation for one specific prompt text.
type selectiveGen struct {
	fakeGen
	failOn string
}

func (g *selectiveGen) Enqueue(ctx context.Context, prompt string, isBatch bool) (string, error) {
	if prompt == g.failOn {
		return "", errors.New("provider unreachable")
	}
	return g.fakeGen.Enqueue(ctx, prompt, isBatch)
}

func waitForBatch(t *testing.T, b *BatchRunner) BatchStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st := b.Status()
		if !st.IsRunning && st.TotalJobs > 0 {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch did not finish in time")
	return BatchStatus{}
}

func submitN(t *testing.T, env *testEnv, teacherID uint64, contents ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(contents))
	for _, c := range contents {
		s := seedStudent(t, env.db, teacherID)
		p, err := env.svc.SubmitPrompt(context.Background(), s.ID, c)
		if err != nil {
			t.Fatalf("submit %q: %v", c, err)
		}
		ids = append(ids, p.PromptID)
	}
	return ids
}

func TestBatchInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	teacher := seedTeacher(t, env.db, 2)
	ids := submitN(t, env, teacher.ID, "one", "two", "three")

	b := NewBatchRunner(env.svc)
	_, err := b.Run(ctx, teacher.ID, nil)
	var ice *InsufficientCreditsError
	if !errors.As(err, &ice) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if ice.Have != 2 || ice.Need != 3 {
		t.Fatalf("unexpected detail: %+v", ice)
	}

	// Nothing was reserved or debited.
	for _, id := range ids {
		p, _ := env.repo.GetPrompt(ctx, id)
		if p.Status != PromptPending {
			t.Fatalf("prompt %s status = %q, want pending", id, p.Status)
		}
	}
	var balance models.User
	env.db.First(&balance, teacher.ID)
	if balance.Credits != 2 {
		t.Fatalf("credits = %d, want 2", balance.Credits)
	}
}

func TestBatchNoPendingPrompts(t *testing.T) {
	env := newTestEnv(t)
	teacher := seedTeacher(t, env.db, 5)

	b := NewBatchRunner(env.svc)
	_, err := b.Run(context.Background(), teacher.ID, nil)
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestBatchRejectedWhileAnotherRuns(t *testing.T) {
	env := newTestEnv(t)
	teacher := seedTeacher(t, env.db, 5)
	submitN(t, env, teacher.ID, "queued")

	b := NewBatchRunner(env.svc)
	b.mu.Lock()
	b.status = BatchStatus{IsRunning: true}
	b.mu.Unlock()

	_, err := b.Run(context.Background(), teacher.ID, nil)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestBatchProcessesAllPrompts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	teacher := seedTeacher(t, env.db, 5)
	ids := submitN(t, env, teacher.ID, "a forest", "a river")

	b := NewBatchRunner(env.svc)
	accept, err := b.Run(ctx, teacher.ID, ids)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if accept.Accepted != 2 || len(accept.Skipped) != 0 {
		t.Fatalf("unexpected accept %+v", accept)
	}
	if accept.BatchID == "" {
		t.Fatalf("missing batch id")
	}

	st := waitForBatch(t, b)
	if st.CompletedJobs != 2 || st.FailedJobs != 0 {
		t.Fatalf("status = %+v, want 2 completed", st)
	}
	if st.Progress != 100 {
		t.Fatalf("progress = %v, want 100", st.Progress)
	}

	for _, id := range ids {
		p, _ := env.repo.GetPrompt(ctx, id)
		if p.Status != PromptProcessed {
			t.Fatalf("prompt %s status = %q, want processed", id, p.Status)
		}
		if p.GeneratedImageID == nil {
			t.Fatalf("prompt %s has no image", id)
		}
	}

	// One ledger entry for the whole batch.
	var entries []models.CreditEntry
	env.db.Where("user_id = ?", teacher.ID).Find(&entries)
	if len(entries) != 1 || entries[0].Amount != -2 {
		t.Fatalf("expected single -2 entry, got %+v", entries)
	}
	var balance models.User
	env.db.First(&balance, teacher.ID)
	if balance.Credits != 3 {
		t.Fatalf("credits = %d, want 3", balance.Credits)
	}

	evs := env.events.named(notify.EventBatchCompleted)
	if len(evs) != 1 || !evs[0].To.Broadcast {
		t.Fatalf("batch completion must broadcast, got %+v", evs)
	}
	payload := evs[0].Payload.(notify.BatchCompleted)
	if payload.TotalProcessed != 2 || payload.SuccessCount != 2 || payload.ErrorCount != 0 {
		t.Fatalf("unexpected completion payload %+v", payload)
	}
}

func TestBatchSurvivesSingleFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gen := &selectiveGen{failOn: "broken"}
	env.svc = NewService(env.repo, gen, fixedClassifier{}, env.events)

	teacher := seedTeacher(t, env.db, 5)
	ids := submitN(t, env, teacher.ID, "fine", "broken")

	b := NewBatchRunner(env.svc)
	if _, err := b.Run(ctx, teacher.ID, ids); err != nil {
		t.Fatalf("run: %v", err)
	}
	st := waitForBatch(t, b)
	if st.CompletedJobs != 1 || st.FailedJobs != 1 {
		t.Fatalf("status = %+v, want 1 completed and 1 failed", st)
	}

	// Both prompts settle as processed; only the good one gets an image.
	for i, id := range ids {
		p, _ := env.repo.GetPrompt(ctx, id)
		if p.Status != PromptProcessed {
			t.Fatalf("prompt %d status = %q, want processed", i, p.Status)
		}
		hasImage := p.GeneratedImageID != nil
		if p.Content == "broken" && hasImage {
			t.Fatalf("failed prompt should have no image")
		}
		if p.Content == "fine" && !hasImage {
			t.Fatalf("successful prompt should have an image")
		}
	}

	// The batch debit is not rolled back on partial failure.
	var balance models.User
	env.db.First(&balance, teacher.ID)
	if balance.Credits != 3 {
		t.Fatalf("credits = %d, want 3", balance.Credits)
	}

	payload := env.events.named(notify.EventBatchCompleted)[0].Payload.(notify.BatchCompleted)
	if payload.ErrorCount != 1 || len(payload.Details) != 2 {
		t.Fatalf("unexpected completion payload %+v", payload)
	}

	evs := env.events.named(notify.EventPromptProcessed)
	if len(evs) != 1 {
		t.Fatalf("expected one failure notification, got %d", len(evs))
	}
}

func TestBatchSkipsConcurrentlyReviewedPrompt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	teacher := seedTeacher(t, env.db, 5)
	ids := submitN(t, env, teacher.ID, "taken", "free")

	// Listed pending, then reviewed before the batch reserves it.
	taken, _ := env.repo.GetPrompt(ctx, ids[0])
	taken.Status = PromptRejected
	if err := env.repo.SavePrompt(ctx, taken); err != nil {
		t.Fatalf("save: %v", err)
	}

	b := NewBatchRunner(env.svc)
	accept, err := b.Run(ctx, teacher.ID, ids)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if accept.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", accept.Accepted)
	}
	waitForBatch(t, b)

	// Only the surviving prompt is charged.
	var balance models.User
	env.db.First(&balance, teacher.ID)
	if balance.Credits != 4 {
		t.Fatalf("credits = %d, want 4", balance.Credits)
	}
}
