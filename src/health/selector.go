package health

import (
	"context"
	"sort"

	"paygateway/src/domain"
)

type snapshotSource interface {
	Snapshot(ctx context.Context) domain.HealthSnapshot
}

// Selector ranks the current health snapshot and picks the best processor.
// The primary processor is preferred whenever its status is no worse than
// the fallback's; latency only breaks ties.
type Selector struct {
	source snapshotSource
}

func NewSelector(source snapshotSource) *Selector {
	return &Selector{source: source}
}

// SelectBest returns the lowest-scoring processor, or found=false when the
// snapshot is empty or every processor is unhealthy.
func (s *Selector) SelectBest(ctx context.Context) (domain.ProcessorHealth, bool) {
	snapshot := s.source.Snapshot(ctx)
	if len(snapshot.Processors) == 0 {
		return domain.ProcessorHealth{}, false
	}

	ranked := make([]domain.ProcessorHealth, len(snapshot.Processors))
	copy(ranked, snapshot.Processors)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si < sj
		}
		return ranked[i].Latency < ranked[j].Latency
	})

	usable := false
	for _, p := range ranked {
		if p.Status != domain.HealthUnhealthy {
			usable = true
			break
		}
	}
	if !usable {
		return domain.ProcessorHealth{}, false
	}
	return ranked[0], true
}

func score(p domain.ProcessorHealth) int {
	return basePriority(p.Name) + statusPenalty(p.Status)
}

func basePriority(name domain.ProcessorName) int {
	switch name {
	case domain.ProcessorDefault:
		return 1
	case domain.ProcessorFallback:
		return 2
	default:
		return 3
	}
}

func statusPenalty(status domain.HealthState) int {
	switch status {
	case domain.HealthHealthy:
		return 0
	case domain.HealthDegraded:
		return 10
	case domain.HealthUnknown:
		return 15
	default:
		return 20
	}
}
