package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/jobctl/internal/model"
	"github.com/makeasinger/jobctl/internal/schema"
	"github.com/makeasinger/jobctl/internal/service"
	"github.com/makeasinger/jobctl/internal/store"
)

func newTestService(t *testing.T) (*service.JobService, store.JobStore) {
	t.Helper()
	st := store.NewMemoryStore()
	v := schema.New(nil)
	v.Register("email", schema.Rules{"to": "required"})
	svc, err := service.NewJobService(service.Deps{Store: st, Validator: v})
	if err != nil {
		t.Fatal(err)
	}
	return svc, st
}

func TestPromoter_PromotesDelayedJob(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	job, err := svc.Create(ctx, map[string]interface{}{
		"type":    "email",
		"to":      "ops@example.com",
		"options": map[string]interface{}{"delay": "1h"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.State != model.JobStateDelayed {
		t.Fatalf("expected delayed job, got %s", job.State)
	}

	task, err := service.NewPromoteTask(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewPromoter(svc).ProcessTask(ctx, task); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := st.Get(ctx, job.ID)
	if got.State != model.JobStateInactive || got.PromoteAt != nil {
		t.Errorf("expected inactive job without promoteAt, got %s %v", got.State, got.PromoteAt)
	}
}

func TestPromoter_LeavesOtherStates(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	job, _ := svc.Create(ctx, map[string]interface{}{"type": "email", "to": "ops@example.com"})
	_ = svc.UpdateState(ctx, job.ID, model.JobStateActive)

	task, _ := service.NewPromoteTask(job.ID)
	if err := NewPromoter(svc).ProcessTask(ctx, task); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := st.Get(ctx, job.ID)
	if got.State != model.JobStateActive {
		t.Errorf("expected state untouched, got %s", got.State)
	}
}

func TestPromoter_RemovedJobAndBadPayload(t *testing.T) {
	svc, _ := newTestService(t)
	p := NewPromoter(svc)

	task, _ := service.NewPromoteTask("404")
	if err := p.ProcessTask(context.Background(), task); err != nil {
		t.Errorf("expected removed job to be skipped, got %v", err)
	}

	bad := asynq.NewTask(service.TaskTypePromote, []byte("{"))
	if err := p.ProcessTask(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry for malformed payload, got %v", err)
	}
}
