package domain

// Activity is a named offering with a capacity and its enrolled participants.
type Activity struct {
	Name            string
	Description     string
	Schedule        string
	MaxParticipants int
	Participants    []string
}

// SpotsLeft reports remaining capacity, never below zero.
func (a Activity) SpotsLeft() int {
	left := a.MaxParticipants - len(a.Participants)
	if left < 0 {
		return 0
	}
	return left
}

// Has reports whether email is enrolled.
func (a Activity) Has(email string) bool {
	for _, p := range a.Participants {
		if p == email {
			return true
		}
	}
	return false
}

// Catalog maps activity names to activities.
type Catalog map[string]Activity

// Confirmation is the success value of a membership change.
type Confirmation struct {
	Activity     string
	Email        string
	Message      string
	Participants int
	SpotsLeft    int
}
