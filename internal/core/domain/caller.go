package domain

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Role   string
}

func (c Caller) IsOperator() bool {
	return c.Role == "operator" || c.Role == "admin"
}

// CanView reports whether the caller may read the order.
func (c Caller) CanView(order *Order) bool {
	return c.IsOperator() || (c.UserID != "" && c.UserID == order.UserID)
}
