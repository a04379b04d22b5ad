package domain

// Identity is the shopper's current authentication state. The zero value is
// anonymous.
type Identity struct {
	UserID string
}

func Anonymous() Identity {
	return Identity{}
}

func Authenticated(userID string) Identity {
	return Identity{UserID: userID}
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}
