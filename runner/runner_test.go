package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/dhcgn/inotes-export/stats"
)

func TestStagesRunInOrder(t *testing.T) {
	r := New(nil)
	var order []string
	r.AddStage("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	r.AddStage("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestFailingStageStopsRun(t *testing.T) {
	r := New(nil)
	boom := errors.New("boom")
	ran := false
	r.AddStage("list", func(context.Context) error { return boom })
	r.AddStage("export", func(context.Context) error {
		ran = true
		return nil
	})

	err := r.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran {
		t.Fatal("stage after the failure must not run")
	}
}

func TestEventsReachEverySubscriber(t *testing.T) {
	r := New(nil)
	a := stats.NewReporter(r, nil)
	b := stats.NewReporter(r, nil)

	r.AddStage("export", func(context.Context) error {
		r.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeWritten, MessageID: "x"})
		r.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeSkipped, MessageID: "y"})
		return nil
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i, rep := range []*stats.Reporter{a, b} {
		s := rep.Summary()
		if s.Written != 1 || s.Skipped != 1 {
			t.Errorf("subscriber %d got %+v", i, s)
		}
	}
}

func TestSubscriberReturningEarlyDoesNotBlock(t *testing.T) {
	r := New(nil)
	r.SubscribeStats("quitter", func(context.Context, <-chan stats.Event) error {
		return nil
	})
	r.AddStage("export", func(context.Context) error {
		for i := 0; i < 1000; i++ {
			r.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeWritten})
		}
		return nil
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
