package domain

// orderTransitions — структурная таблица переходов: из статуса-ключа
// разрешены только перечисленные целевые статусы. Таблица не зависит от
// роли; ролевые ограничения накладываются поверх неё.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:    {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted:  {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusAssigned, OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusAssigned:  {OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusPickedUp:  {OrderStatusEnroute, OrderStatusCancelled},
	OrderStatusEnroute:   {OrderStatusDelivered, OrderStatusCancelled},
	// Терминальные статусы не имеют исходящих рёбер.
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// roleTransitions ограничивает, какая роль может инициировать какое ребро.
// Роли admin и system обходят эту таблицу, но не структурную.
var roleTransitions = map[ActorRole]map[OrderStatus][]OrderStatus{
	RoleVendor: {
		OrderStatusPlaced:    {OrderStatusAccepted, OrderStatusCancelled},
		OrderStatusAccepted:  {OrderStatusPreparing, OrderStatusCancelled},
		OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	},
	RoleDriver: {
		OrderStatusReady:    {OrderStatusPickedUp},
		OrderStatusAssigned: {OrderStatusPickedUp},
		OrderStatusPickedUp: {OrderStatusEnroute},
		OrderStatusEnroute:  {OrderStatusDelivered},
	},
	RoleCustomer: {
		OrderStatusPlaced: {OrderStatusCancelled},
	},
}

// ValidateTransition проверяет переход from → to для роли role.
// Порядок проверок фиксирован: терминальность, структурная таблица,
// ролевые ограничения. Каждый вид отказа — собственный типизированный
// error с данными ребра, чтобы вызывающий мог построить точное сообщение.
func ValidateTransition(from, to OrderStatus, role ActorRole) error {
	if from.Terminal() {
		return &TerminalStateError{From: from, To: to}
	}

	if !containsStatus(orderTransitions[from], to) {
		return &StructuralTransitionError{From: from, To: to}
	}

	// Отсутствующая роль трактуется как системный вызов.
	if role == RoleAdmin || role == RoleSystem || role == "" {
		return nil
	}

	if !containsStatus(roleTransitions[role][from], to) {
		return &RolePermissionError{Role: role, From: from, To: to}
	}

	return nil
}

// IsTransitionAllowed — невыбрасывающая обёртка над ValidateTransition.
// Обе функции обязаны разделять одну таблицу, иначе они разъедутся.
func IsTransitionAllowed(from, to OrderStatus, role ActorRole) bool {
	return ValidateTransition(from, to, role) == nil
}

func containsStatus(list []OrderStatus, status OrderStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}
