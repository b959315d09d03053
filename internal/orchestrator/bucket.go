package orchestrator

import (
	"fmt"
	"sort"

	"github.com/ShayCichocki/relay/internal/graph"
	"github.com/ShayCichocki/relay/pkg/models"
)

// Bucket is a set of actions that run concurrently as one step of a plan.
type Bucket struct {
	// Label is the shared order value, or the graph level in ModeDependsOn.
	Label   int
	Actions []models.PlanAction
}

// Buckets groups plan actions for mode, in execution order.
// Within a bucket, actions keep plan order.
func Buckets(plan models.MultiActionPlan, mode Mode) ([]Bucket, error) {
	return buckets(plan, mode, nil)
}

func buckets(plan models.MultiActionPlan, mode Mode, debugf func(string, ...any)) ([]Bucket, error) {
	switch mode {
	case ModeOrder, "":
		return orderBuckets(plan.Actions), nil
	case ModeDependsOn:
		return levelBuckets(plan.Actions, debugf)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func orderBuckets(actions []models.PlanAction) []Bucket {
	byOrder := make(map[int][]models.PlanAction)
	for _, a := range actions {
		byOrder[a.Order] = append(byOrder[a.Order], a)
	}

	labels := make([]int, 0, len(byOrder))
	for label := range byOrder {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	buckets := make([]Bucket, 0, len(labels))
	for _, label := range labels {
		buckets = append(buckets, Bucket{Label: label, Actions: byOrder[label]})
	}
	return buckets
}

func levelBuckets(actions []models.PlanAction, debugf func(string, ...any)) ([]Bucket, error) {
	g := graph.New()
	g.SetDebugLog(debugf)
	if err := g.Build(actions); err != nil {
		return nil, err
	}
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}

	buckets := make([]Bucket, 0, len(levels))
	for i, level := range levels {
		buckets = append(buckets, Bucket{Label: i, Actions: level})
	}
	return buckets, nil
}
