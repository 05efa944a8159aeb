package validation

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\d{10,15}$`)

	// Genders lists the accepted gender values.
	Genders = []string{"Male", "Female", "Other"}
)

// Address is the postal address of a registered user.
type Address struct {
	Street string
	City   string
	Zip    string
}

// UserInput is a validated, sanitized user registration.
type UserInput struct {
	Name    string
	Age     int
	Gender  string
	Address Address
	Email   string
	Phone   string
	Photo   string
}

// Sanitize strips the characters <, > and $ from s.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '$':
			return -1
		}
		return r
	}, s)
}

// IsValidEmail reports whether email has a local@domain.tld shape.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsValidPhone reports whether phone is 10 to 15 digits.
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidateUser checks a raw registration payload. String fields are sanitized
// before they are checked so the stored value is the value that was validated.
func ValidateUser(raw Raw) (UserInput, error) {
	var c collector
	if raw == nil {
		return UserInput{}, Fail("body", "request body is required")
	}

	for _, key := range []string{"name", "age", "gender", "address", "email", "phone"} {
		if !present(raw, key) {
			c.add(key, key+" is required")
		}
	}

	in := UserInput{
		Name:   strings.TrimSpace(Sanitize(trimmed(raw, "name"))),
		Gender: trimmed(raw, "gender"),
		Email:  strings.ToLower(Sanitize(trimmed(raw, "email"))),
		Phone:  Sanitize(trimmed(raw, "phone")),
		Photo:  Sanitize(trimmed(raw, "photo")),
	}

	if present(raw, "name") {
		if _, ok := stringField(raw, "name"); !ok || in.Name == "" {
			c.add("name", "name must be a non-empty string")
		}
	}

	if present(raw, "age") {
		age, ok := integerField(raw, "age")
		if !ok || age <= 0 {
			c.add("age", "age must be a positive integer")
		} else {
			in.Age = age
		}
	}

	if present(raw, "gender") && !contains(Genders, in.Gender) {
		c.add("gender", "gender must be Male, Female, or Other")
	}

	if present(raw, "address") {
		addr, ok := objectField(raw, "address")
		if !ok {
			c.add("address", "address must be an object with street, city and zip")
		} else {
			in.Address = Address{
				Street: Sanitize(trimmed(addr, "street")),
				City:   Sanitize(trimmed(addr, "city")),
				Zip:    Sanitize(trimmed(addr, "zip")),
			}
			if in.Address.Street == "" || in.Address.City == "" || in.Address.Zip == "" {
				c.add("address", "complete address is required")
			}
		}
	}

	if present(raw, "email") && !IsValidEmail(in.Email) {
		c.add("email", "invalid email format")
	}

	if present(raw, "phone") {
		if _, ok := stringField(raw, "phone"); !ok || !IsValidPhone(in.Phone) {
			c.add("phone", "invalid phone number")
		}
	}

	if err := c.err(); err != nil {
		return UserInput{}, err
	}
	return in, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
