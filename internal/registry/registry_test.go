package registry

import (
	"context"
	"testing"

	"github.com/ShayCichocki/relay/pkg/models"
)

func desc(id string, caps ...string) models.ExecutorDescriptor {
	return models.ExecutorDescriptor{ID: id, Capabilities: caps, Availability: models.AvailabilityAvailable}
}

func TestFindBestMatch(t *testing.T) {
	tests := []struct {
		name      string
		executors []models.ExecutorDescriptor
		required  []string
		wantID    string
		wantOK    bool
	}{
		{
			name: "superset wins",
			executors: []models.ExecutorDescriptor{
				desc("partial", "code", "testing"),
				desc("full", "code", "testing", "aesthetics"),
			},
			required: []string{"code", "testing", "aesthetics"},
			wantID:   "full",
			wantOK:   true,
		},
		{
			name: "disjoint capabilities match nothing",
			executors: []models.ExecutorDescriptor{
				desc("researcher", "research"),
				desc("designer", "aesthetics"),
			},
			required: []string{"code"},
			wantOK:   false,
		},
		{
			name: "tie goes to first registered",
			executors: []models.ExecutorDescriptor{
				desc("first", "code"),
				desc("second", "code"),
			},
			required: []string{"code"},
			wantID:   "first",
			wantOK:   true,
		},
		{
			name:      "empty registry",
			executors: nil,
			required:  []string{"code"},
			wantOK:    false,
		},
		{
			name: "empty requirement matches nothing",
			executors: []models.ExecutorDescriptor{
				desc("coder", "code"),
			},
			required: nil,
			wantOK:   false,
		},
		{
			name: "availability is ignored",
			executors: []models.ExecutorDescriptor{
				{ID: "offline", Capabilities: []string{"code"}, Availability: models.AvailabilityOffline},
			},
			required: []string{"code"},
			wantID:   "offline",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			for _, d := range tt.executors {
				r.Register(d, nil)
			}

			got, ok := r.FindBestMatch(tt.required)
			if ok != tt.wantOK {
				t.Fatalf("FindBestMatch() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("FindBestMatch() = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestRegister_ReplacesInPlace(t *testing.T) {
	r := New()
	r.Register(desc("a", "code"), nil)
	r.Register(desc("b", "code"), nil)
	r.Register(desc("a", "research"), nil)

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].ID != "a" || !all[0].HasCapability("research") || all[0].HasCapability("code") {
		t.Errorf("replacement wrong: %+v", all[0])
	}

	// "a" no longer has code, so "b" is the only match.
	got, ok := r.FindBestMatch([]string{"code"})
	if !ok || got.ID != "b" {
		t.Errorf("FindBestMatch() = %v %v, want b", got.ID, ok)
	}
}

func TestRegister_DefaultsAvailability(t *testing.T) {
	r := New()
	r.Register(models.ExecutorDescriptor{ID: "x"}, nil)
	if !r.IsAvailable("x") {
		t.Error("expected default availability to be available")
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	r.Register(desc("a", "code"), nil)
	r.Register(desc("b", "testing"), nil)
	r.Register(desc("c", "code"), nil)

	if !r.Unregister("a") {
		t.Fatal("Unregister(a) = false")
	}
	if r.Unregister("a") {
		t.Error("second Unregister(a) = true")
	}
	if _, ok := r.Get("a"); ok {
		t.Error("a still present")
	}

	// Index must be rebuilt for the entries that shifted.
	if d, ok := r.Get("c"); !ok || d.ID != "c" {
		t.Errorf("Get(c) = %+v %v", d, ok)
	}
	got := r.FindByCapability("code")
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("FindByCapability(code) = %v", got)
	}
}

func TestFindByCapability_RegistrationOrder(t *testing.T) {
	r := New()
	r.Register(desc("z", "code"), nil)
	r.Register(desc("m", "research"), nil)
	r.Register(desc("a", "code", "testing"), nil)

	got := r.FindByCapability("code")
	if len(got) != 2 || got[0].ID != "z" || got[1].ID != "a" {
		t.Errorf("FindByCapability(code) = %v", got)
	}
	if got := r.FindByCapability("presentation"); len(got) != 0 {
		t.Errorf("expected none, got %v", got)
	}
}

func TestIsAvailable(t *testing.T) {
	r := New()
	r.Register(desc("up", "code"), nil)
	r.Register(models.ExecutorDescriptor{ID: "busy", Availability: models.AvailabilityBusy}, nil)

	if !r.IsAvailable("up") {
		t.Error("up should be available")
	}
	if r.IsAvailable("busy") {
		t.Error("busy should not be available")
	}
	if r.IsAvailable("missing") {
		t.Error("unknown id should not be available")
	}

	if !r.SetAvailability("busy", models.AvailabilityAvailable) {
		t.Fatal("SetAvailability(busy) = false")
	}
	if !r.IsAvailable("busy") {
		t.Error("busy should be available after SetAvailability")
	}
	if r.SetAvailability("missing", models.AvailabilityOffline) {
		t.Error("SetAvailability on unknown id should return false")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := New()
	r.Register(desc("a", "code"), nil)

	d, _ := r.Get("a")
	d.Capabilities[0] = "mutated"

	again, _ := r.Get("a")
	if again.Capabilities[0] != "code" {
		t.Errorf("registry state mutated through returned descriptor: %v", again.Capabilities)
	}
}

func TestExecutorBinding(t *testing.T) {
	r := New()
	exec := ExecutorFunc(func(ctx context.Context, w models.UnitOfWork) models.WorkResult {
		return models.WorkResult{Success: true, Output: w.Prompt}
	})
	r.Register(desc("bound", "code"), exec)
	r.Register(desc("bare", "code"), nil)

	got := r.Executor("bound")
	if got == nil {
		t.Fatal("expected executor for bound")
	}
	if res := got.Execute(context.Background(), models.UnitOfWork{Prompt: "hi"}); res.Output != "hi" {
		t.Errorf("Execute() output = %v", res.Output)
	}
	if r.Executor("bare") != nil {
		t.Error("expected nil executor for bare")
	}
	if r.Executor("missing") != nil {
		t.Error("expected nil executor for unknown id")
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		required []string
		caps     []string
		want     int
	}{
		{[]string{"code", "testing"}, []string{"code", "testing", "aesthetics"}, 2},
		{[]string{"code"}, []string{"research"}, 0},
		{nil, []string{"code"}, 0},
		{[]string{"code"}, nil, 0},
		{[]string{"code", "code"}, []string{"code"}, 1},
	}
	for _, tt := range tests {
		if got := Score(tt.required, tt.caps); got != tt.want {
			t.Errorf("Score(%v, %v) = %d, want %d", tt.required, tt.caps, got, tt.want)
		}
	}
}
