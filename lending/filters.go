package lending

// BookFilter narrows book listings. Zero values mean "no filter".
type BookFilter struct {
	Title         string
	Author        string
	AvailableOnly bool
}

// UserFilter narrows user listings. Zero values mean "no filter".
type UserFilter struct {
	Name  string
	Email string
}
