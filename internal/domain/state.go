package domain

// DialogStep описывает, какого ввода бот ждёт от пользователя.
type DialogStep string

const (
	// StepIdle — диалог не активен, свободный текст игнорируется.
	StepIdle DialogStep = "idle"
	// StepAwaitingCity — бот ждёт название города.
	StepAwaitingCity DialogStep = "awaiting_city"
	// StepAwaitingTime — бот ждёт время доставки в формате ЧЧ:ММ.
	StepAwaitingTime DialogStep = "awaiting_time"
	// StepAwaitingFeedback — бот ждёт текст отзыва.
	StepAwaitingFeedback DialogStep = "awaiting_feedback"
)

// DialogPurpose уточняет, зачем запрошен ввод.
type DialogPurpose string

const (
	// PurposeSubscribe — оформление новой подписки.
	PurposeSubscribe DialogPurpose = "subscribe"
	// PurposeChangeCity — смена города существующей подписки.
	PurposeChangeCity DialogPurpose = "change_city"
	// PurposeChangeTime — смена времени существующей подписки.
	PurposeChangeTime DialogPurpose = "change_time"
)

// ConversationState — состояние диалога одного пользователя.
// PendingCity заполняется только между шагами подписки, пока время ещё не задано.
type ConversationState struct {
	Step        DialogStep    `json:"step"`
	Purpose     DialogPurpose `json:"purpose,omitempty"`
	PendingCity string        `json:"pending_city,omitempty"`
}

// IdleState возвращает пустое состояние диалога.
func IdleState() ConversationState {
	return ConversationState{Step: StepIdle}
}
