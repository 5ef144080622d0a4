package presence

// Selector filters connections. Nil fields match anything.
type Selector struct {
	ConnectionID *string
	AccountID    *string
	Name         *string
	Current      *bool
}

// Match reports whether c satisfies every set field.
func (s Selector) Match(c *Connection) bool {
	info := c.Info()
	if s.ConnectionID != nil && *s.ConnectionID != info.ID {
		return false
	}
	if s.AccountID != nil && *s.AccountID != info.Account.ID {
		return false
	}
	if s.Name != nil && *s.Name != info.Account.Name {
		return false
	}
	if s.Current != nil && *s.Current != c.Current() {
		return false
	}
	return true
}

// ByID selects one connection id.
func ByID(id string) Selector { return Selector{ConnectionID: &id} }

// ByAccount selects all connections of an account.
func ByAccount(accountID string) Selector { return Selector{AccountID: &accountID} }

// ByName selects connections whose account display name is name.
func ByName(name string) Selector { return Selector{Name: &name} }

// IsCurrent selects connections by their current flag.
func IsCurrent(current bool) Selector { return Selector{Current: &current} }
