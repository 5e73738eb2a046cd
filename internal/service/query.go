package service

import (
	"context"

	"docqa/internal/model"
	"docqa/internal/qa"
)

// QueryService answers questions over the indexed documents.
type QueryService interface {
	Ask(ctx context.Context, question string) (*model.Answer, error)
	// AskStream delivers the answer text to onToken while it is generated.
	AskStream(ctx context.Context, question string, onToken qa.TokenFunc) (*model.Answer, []model.Citation, error)
}

// Answerer is implemented by *qa.Answerer.
type Answerer interface {
	Ask(ctx context.Context, question string) (*model.Answer, error)
	AskStream(ctx context.Context, question string, onToken qa.TokenFunc) (*model.Answer, []model.Citation, error)
}

type queryService struct {
	answerer Answerer
}

func NewQueryService(a Answerer) QueryService {
	return &queryService{answerer: a}
}

func (s *queryService) Ask(ctx context.Context, question string) (*model.Answer, error) {
	return s.answerer.Ask(ctx, question)
}

func (s *queryService) AskStream(ctx context.Context, question string, onToken qa.TokenFunc) (*model.Answer, []model.Citation, error) {
	return s.answerer.AskStream(ctx, question, onToken)
}
