package app

import (
	"sync"

	"go.uber.org/zap"
)

// WorkflowService держит по одному сценарию на сессию оператора
type WorkflowService struct {
	services Services
	log      *zap.Logger

	mu        sync.Mutex
	workflows map[int64]*Workflow
	observers []Observer
}

// NewWorkflowService создаёт реестр сценариев
func NewWorkflowService(services Services, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		services:  services,
		log:       logger,
		workflows: make(map[int64]*Workflow),
	}
}

// Workflow возвращает сценарий сессии, создаёт его при первом обращении
func (s *WorkflowService) Workflow(sessionID int64) *Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workflows[sessionID]; ok {
		return w
	}

	w := NewWorkflow(sessionID, s.services, s.log)
	for _, o := range s.observers {
		w.Subscribe(o)
	}
	s.workflows[sessionID] = w
	s.log.Debug("WorkflowService created workflow", zap.Int64("session_id", sessionID))
	return w
}

// Lookup возвращает сценарий, если он уже создан
func (s *WorkflowService) Lookup(sessionID int64) (*Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[sessionID]
	return w, ok
}

// Subscribe подписывает наблюдателя на все текущие и будущие сценарии
func (s *WorkflowService) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, o)
	for _, w := range s.workflows {
		w.Subscribe(o)
	}
}
