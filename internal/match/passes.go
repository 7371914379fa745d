package match

import (
	"errors"
	"fmt"
)

// ErrInvalidPass is returned for a pass that cannot be run
var ErrInvalidPass = errors.New("invalid pass")

func exact(f Field) Comparison {
	return Comparison{Name: f.String(), Left: f, Right: f, Kind: Exact}
}

func fuzzy(f Field) Comparison {
	return Comparison{Name: f.String(), Left: f, Right: f, Kind: Fuzzy}
}

func cross(left, right Field) Comparison {
	return Comparison{Name: left.String() + "~" + right.String(), Left: left, Right: right, Kind: Fuzzy}
}

// SurnamePass blocks on surname. Name-order swaps cannot share a surname
// block, so this pass carries no cross comparisons.
func SurnamePass() Pass {
	return Pass{
		Name: "surname",
		Key:  Surname,
		Comparisons: []Comparison{
			fuzzy(GivenName),
			exact(DateOfBirth),
			exact(StreetNumber),
			fuzzy(Address1),
			fuzzy(Suburb),
			exact(Postcode),
			exact(State),
			exact(Age),
			exact(PhoneNumber),
		},
	}
}

// PostcodePass blocks on postcode and checks names in both orders
func PostcodePass() Pass {
	return Pass{
		Name: "postcode",
		Key:  Postcode,
		Comparisons: []Comparison{
			fuzzy(GivenName),
			fuzzy(Surname),
			cross(GivenName, Surname),
			cross(Surname, GivenName),
			exact(DateOfBirth),
			exact(StreetNumber),
			fuzzy(Address1),
			fuzzy(Suburb),
			exact(Age),
			exact(PhoneNumber),
		},
	}
}

// PhonePass blocks on the digits of the phone number
func PhonePass() Pass {
	return Pass{
		Name: "phone",
		Key:  PhoneNumber,
		Comparisons: []Comparison{
			fuzzy(GivenName),
			fuzzy(Surname),
			cross(GivenName, Surname),
			cross(Surname, GivenName),
			exact(DateOfBirth),
			exact(StreetNumber),
			fuzzy(Address1),
			fuzzy(Suburb),
			exact(Postcode),
			exact(Age),
		},
	}
}

// DefaultPasses returns the three blocking passes in run order
func DefaultPasses() []Pass {
	return []Pass{SurnamePass(), PostcodePass(), PhonePass()}
}

// Validate checks that the pass is runnable. The blocking key may not be
// compared inside its own pass: every pair in a block already agrees on it.
func (p Pass) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPass)
	}
	if p.Key < 0 || p.Key >= fieldCount {
		return fmt.Errorf("%w: %s: unknown key %s", ErrInvalidPass, p.Name, p.Key)
	}
	if len(p.Comparisons) == 0 {
		return fmt.Errorf("%w: %s: no comparisons", ErrInvalidPass, p.Name)
	}
	for _, c := range p.Comparisons {
		if c.Left < 0 || c.Left >= fieldCount || c.Right < 0 || c.Right >= fieldCount {
			return fmt.Errorf("%w: %s: comparison %q has an unknown field", ErrInvalidPass, p.Name, c.Name)
		}
		if c.Left == p.Key && c.Right == p.Key {
			return fmt.Errorf("%w: %s: comparison %q repeats the blocking key", ErrInvalidPass, p.Name, c.Name)
		}
		if c.Threshold < 0 || c.Threshold > 1 {
			return fmt.Errorf("%w: %s: comparison %q threshold %v outside [0, 1]", ErrInvalidPass, p.Name, c.Name, c.Threshold)
		}
	}
	return nil
}
