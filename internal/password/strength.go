// Package password scores password strength for live feedback in forms.
package password

import "unicode"

// MinLength is the shortest acceptable password.
const MinLength = 8

// Requirement is one rule and whether the password meets it.
type Requirement struct {
	Label string
	Met   bool
}

// Strength is the feedback for one password.
type Strength struct {
	Requirements []Requirement
	// Score is the number of requirements met, 0 to 5.
	Score int
	Label string
}

// Acceptable reports whether every requirement is met.
func (s Strength) Acceptable() bool { return s.Score == len(s.Requirements) }

var labels = [...]string{"very weak", "very weak", "weak", "fair", "good", "strong"}

// Check evaluates pw against the five requirements.
func Check(pw string) Strength {
	var upper, lower, digit, special bool
	length := 0
	for _, r := range pw {
		length++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	reqs := []Requirement{
		{Label: "At least 8 characters", Met: length >= MinLength},
		{Label: "One uppercase letter", Met: upper},
		{Label: "One lowercase letter", Met: lower},
		{Label: "One number", Met: digit},
		{Label: "One special character", Met: special},
	}

	score := 0
	for _, r := range reqs {
		if r.Met {
			score++
		}
	}
	return Strength{Requirements: reqs, Score: score, Label: labels[score]}
}
