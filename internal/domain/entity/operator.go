package entity

// OperatorState состояние диалога с оператором
type OperatorState string

const (
	StateMainMenu      OperatorState = "main_menu"      // В главном меню
	StateAwaitingPhoto OperatorState = "awaiting_photo" // Ожидание снимка глазного дна
	StateAwaitingField OperatorState = "awaiting_field" // Ожидание значения поля карты
)

// Operator представляет врача, работающего с ботом
type Operator struct {
	ID           int64         // Telegram User ID
	ChatID       int64         // Telegram Chat ID, он же идентификатор сессии
	State        OperatorState // Текущее состояние диалога
	PendingField FieldName     // Поле, значение которого ждём следующим сообщением
}

// NewOperator создаёт оператора с начальным состоянием
func NewOperator(userID, chatID int64) *Operator {
	return &Operator{
		ID:     userID,
		ChatID: chatID,
		State:  StateMainMenu,
	}
}

// SetState обновляет состояние диалога
func (o *Operator) SetState(state OperatorState) {
	o.State = state
	if state != StateAwaitingField {
		o.PendingField = ""
	}
}

// AwaitField переводит диалог в ожидание значения поля
func (o *Operator) AwaitField(field FieldName) {
	o.State = StateAwaitingField
	o.PendingField = field
}
