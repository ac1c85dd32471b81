// Package settlement отделяет быстрый матчинг/роутинг от медленной
// финализации в леджере: роутер никогда не блокируется на сеттлменте.
package settlement

import "indexmarket/internal/models"

// ValidTransitions определяет допустимые переходы статусов запроса.
// processing → pending - это ретрай: новая попытка под ТЕМ ЖЕ id,
// обратных переходов из терминальных статусов нет.
var ValidTransitions = map[string][]string{
	models.SettlementPending:    {models.SettlementProcessing},
	models.SettlementProcessing: {models.SettlementCompleted, models.SettlementFailed, models.SettlementPending},
	models.SettlementCompleted:  {},
	models.SettlementFailed:     {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание статуса для UI
func StatusInfo(s string) string {
	switch s {
	case models.SettlementPending:
		return "Запрос в очереди, ожидает диспетчеризации"
	case models.SettlementProcessing:
		return "Исполняется против леджера..."
	case models.SettlementCompleted:
		return "Финализирован в леджере"
	case models.SettlementFailed:
		return "Ошибка! Требуется сверка вне основного потока"
	default:
		return "Неизвестный статус"
	}
}
