package service

import (
	"context"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/pipeline"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
)

// RunDetail is an analysis run with its batch ledger.
type RunDetail struct {
	Run     *domain.AnalysisRun `json:"run"`
	Batches []domain.RunBatch   `json:"batches"`
}

type RunService struct {
	runner pipeline.AnalysisRunner
	runs   repository.RunRepository
}

func NewRunService(runner pipeline.AnalysisRunner, runs repository.RunRepository) *RunService {
	return &RunService{runner: runner, runs: runs}
}

// Trigger executes a run synchronously and returns its summary.
func (s *RunService) Trigger(ctx context.Context, req pipeline.RunRequest) (*domain.RunSummary, error) {
	return s.runner.Run(ctx, req)
}

func (s *RunService) Get(ctx context.Context, id string) (*RunDetail, error) {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	batches, err := s.runs.ListBatches(ctx, id)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		batches = make([]domain.RunBatch, 0)
	}

	return &RunDetail{Run: run, Batches: batches}, nil
}
