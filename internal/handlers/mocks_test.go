package handlers

import (
	"context"
	"sync"

	"github.com/hoopsml/shotpredict/internal/logic"
	"github.com/hoopsml/shotpredict/internal/models"
)

const testToken = "valid-token"

// MockAuthService accepts testToken for johndoe unless overridden.
type MockAuthService struct {
	SignupFunc       func(ctx context.Context, req models.SignupRequest) (*models.User, error)
	LoginFunc        func(ctx context.Context, username, password string) (*models.TokenResponse, error)
	AuthenticateFunc func(ctx context.Context, token string) (*models.User, error)
}

func (m *MockAuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	if m.SignupFunc != nil {
		return m.SignupFunc(ctx, req)
	}
	return &models.User{ID: 1, Username: req.Username, Disabled: req.Disabled}, nil
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*models.TokenResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password)
	}
	if username == "johndoe" && password == "secret" {
		return &models.TokenResponse{AccessToken: testToken, TokenType: "bearer", ExpiresIn: 1800}, nil
	}
	return nil, logic.ErrInvalidCredentials
}

func (m *MockAuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, token)
	}
	if token == testToken {
		return &models.User{ID: 1, Username: "johndoe"}, nil
	}
	return nil, logic.ErrInvalidCredentials
}

type MockPredictionStore struct {
	SavePredictionFunc   func(ctx context.Context, rec *models.PredictionRecord) (int64, error)
	RandomUnverifiedFunc func(ctx context.Context) (*models.PredictionRecord, error)
	VerifyPredictionFunc func(ctx context.Context, id int64, trueValue int) error

	Saved []*models.PredictionRecord
}

func (m *MockPredictionStore) SavePrediction(ctx context.Context, rec *models.PredictionRecord) (int64, error) {
	m.Saved = append(m.Saved, rec)
	if m.SavePredictionFunc != nil {
		return m.SavePredictionFunc(ctx, rec)
	}
	return int64(len(m.Saved)), nil
}

func (m *MockPredictionStore) RandomUnverified(ctx context.Context) (*models.PredictionRecord, error) {
	if m.RandomUnverifiedFunc != nil {
		return m.RandomUnverifiedFunc(ctx)
	}
	return nil, logic.ErrNoUnverified
}

func (m *MockPredictionStore) VerifyPrediction(ctx context.Context, id int64, trueValue int) error {
	if m.VerifyPredictionFunc != nil {
		return m.VerifyPredictionFunc(ctx, id, trueValue)
	}
	return nil
}

// MockPredictor predicts a make for shots under 8 ft.
type MockPredictor struct {
	PredictFunc func(ctx context.Context, item *models.ScoringItem) (*models.Prediction, error)
	Calls       int
}

func (m *MockPredictor) Predict(ctx context.Context, item *models.ScoringItem) (*models.Prediction, error) {
	m.Calls++
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, item)
	}
	p := &models.Prediction{Probability: 0.2, ModelVersion: "model_lr-v1-20240105"}
	if item.ShotDistance < 8 {
		p.Prediction, p.Probability = 1, 0.8
	}
	return p, nil
}

type MockAuditQueue struct {
	mu     sync.Mutex
	Events []*models.PredictionEvent
	Full   bool
}

func (m *MockAuditQueue) Enqueue(event *models.PredictionEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Full {
		return false
	}
	m.Events = append(m.Events, event)
	return true
}

func (m *MockAuditQueue) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}
