package user

import "time"

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Address is a user's postal address.
type Address struct {
	Street string
	City   string
	Zip    string
}

// User is a registered disputant. It mirrors the users table and carries no
// JSON annotations so presentation layers can shape it as they need.
type User struct {
	ID        string
	Name      string
	Age       int
	Gender    Gender
	Address   Address
	Email     string
	Phone     string
	Photo     string
	CreatedAt time.Time
}

// Summary is the subset of a user exposed in pick lists.
type Summary struct {
	ID    string
	Name  string
	Email string
	Phone string
}
