package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docqa/internal/model"
	"docqa/internal/qa"
	"docqa/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

var _ service.DocumentService = (*MockDocumentService)(nil)

func (m *MockDocumentService) Upload(ctx context.Context, files []service.UploadFile) (*service.UploadResult, error) {
	args := m.Called(ctx, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, limit, offset int, status model.DocumentStatus) (*service.DocumentListResult, error) {
	args := m.Called(ctx, limit, offset, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentService) Download(ctx context.Context, id string) (*service.Download, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Download), args.Error(1)
}

type MockQueryService struct {
	mock.Mock
}

var _ service.QueryService = (*MockQueryService)(nil)

func (m *MockQueryService) Ask(ctx context.Context, question string) (*model.Answer, error) {
	args := m.Called(ctx, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Answer), args.Error(1)
}

// AskStream replays Tokens through onToken before returning the stubbed result.
func (m *MockQueryService) AskStream(ctx context.Context, question string, onToken qa.TokenFunc) (*model.Answer, []model.Citation, error) {
	args := m.Called(ctx, question, onToken)
	if tokens, ok := args.Get(0).([]string); ok {
		for _, tok := range tokens {
			if err := onToken(ctx, []byte(tok)); err != nil {
				return nil, nil, err
			}
		}
	}
	var (
		ans   *model.Answer
		cites []model.Citation
	)
	if a, ok := args.Get(1).(*model.Answer); ok {
		ans = a
	}
	if c, ok := args.Get(2).([]model.Citation); ok {
		cites = c
	}
	return ans, cites, args.Error(3)
}
