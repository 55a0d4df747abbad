package storage

import (
	"context"
	"sync"

	"retina-bot/internal/domain/entity"
	"retina-bot/internal/domain/port"
)

// operatorKey оператор хранится отдельно для каждого чата,
// так же как и сценарий диагностики
type operatorKey struct {
	userID int64
	chatID int64
}

// MemoryOperatorRepository in-memory хранилище операторов.
// Хранит копии, чтобы изменения вне Save не протекали в общее состояние.
type MemoryOperatorRepository struct {
	mu        sync.RWMutex
	operators map[operatorKey]entity.Operator
}

// NewMemoryOperatorRepository создаёт новое in-memory хранилище
func NewMemoryOperatorRepository() *MemoryOperatorRepository {
	return &MemoryOperatorRepository{
		operators: make(map[operatorKey]entity.Operator),
	}
}

// Get возвращает оператора чата, создаёт нового если не найден
func (r *MemoryOperatorRepository) Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	key := operatorKey{userID: userID, chatID: chatID}

	r.mu.RLock()
	operator, exists := r.operators[key]
	r.mu.RUnlock()

	if exists {
		return &operator, nil
	}

	newOperator := entity.NewOperator(userID, chatID)

	r.mu.Lock()
	if existing, ok := r.operators[key]; ok {
		r.mu.Unlock()
		return &existing, nil
	}
	r.operators[key] = *newOperator
	r.mu.Unlock()

	return newOperator, nil
}

// Save сохраняет состояние оператора
func (r *MemoryOperatorRepository) Save(ctx context.Context, operator *entity.Operator) error {
	r.mu.Lock()
	r.operators[operatorKey{userID: operator.ID, chatID: operator.ChatID}] = *operator
	r.mu.Unlock()

	return nil
}

// Проверка реализации интерфейса
var _ port.OperatorRepository = (*MemoryOperatorRepository)(nil)
