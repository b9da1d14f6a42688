package models

import (
	"strings"

	"github.com/google/uuid"

	"entrypass/pkg/domain"
	dErrors "entrypass/pkg/domain-errors"
)

type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexOther  Sex = "other"
)

// Member is one person on a registration roster. Members have no lifecycle
// of their own.
type Member struct {
	ID             uuid.UUID             `json:"-"`
	RegistrationID domain.RegistrationID `json:"-"`
	Name           string                `json:"name"`
	Age            int                   `json:"age"`
	Sex            Sex                   `json:"sex"`
	IsForeign      bool                  `json:"is_foreign"`
	Municipality   string                `json:"municipality,omitempty"`
	Province       string                `json:"province,omitempty"`
	Country        string                `json:"country"`
}

// MemberInput is an unvalidated roster entry.
type MemberInput struct {
	Name         string `json:"name"`
	Age          int    `json:"age"`
	Sex          string `json:"sex"`
	IsForeign    bool   `json:"is_foreign"`
	Municipality string `json:"municipality"`
	Province     string `json:"province"`
	Country      string `json:"country"`
}

// RosterPolicy carries the roster limits that come from configuration.
type RosterPolicy struct {
	MaxGroupSize    int
	DomesticCountry string
}

// NewRoster validates and normalizes a roster. Domestic members keep their
// residence and get the domestic country; foreign members keep only a country.
func NewRoster(inputs []MemberInput, policy RosterPolicy) ([]Member, error) {
	if len(inputs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one group member is required")
	}
	if policy.MaxGroupSize > 0 && len(inputs) > policy.MaxGroupSize {
		return nil, dErrors.New(dErrors.CodeValidation, "group exceeds the maximum group size")
	}

	members := make([]Member, 0, len(inputs))
	for _, in := range inputs {
		m, err := newMember(in, policy.DomesticCountry)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func newMember(in MemberInput, domesticCountry string) (Member, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Member{}, dErrors.New(dErrors.CodeValidation, "member name is required")
	}
	if in.Age < 0 || in.Age > 150 {
		return Member{}, dErrors.New(dErrors.CodeValidation, "member age must be between 0 and 150")
	}
	sex := Sex(strings.ToLower(strings.TrimSpace(in.Sex)))
	switch sex {
	case SexMale, SexFemale, SexOther:
	default:
		return Member{}, dErrors.New(dErrors.CodeValidation, "member sex must be male, female or other")
	}

	m := Member{
		ID:        uuid.New(),
		Name:      name,
		Age:       in.Age,
		Sex:       sex,
		IsForeign: in.IsForeign,
	}
	if in.IsForeign {
		m.Country = strings.TrimSpace(in.Country)
		if m.Country == "" {
			return Member{}, dErrors.New(dErrors.CodeValidation, "country is required for foreign members")
		}
		return m, nil
	}

	m.Municipality = strings.TrimSpace(in.Municipality)
	m.Province = strings.TrimSpace(in.Province)
	if m.Municipality == "" || m.Province == "" {
		return Member{}, dErrors.New(dErrors.CodeValidation, "municipality and province are required for domestic members")
	}
	m.Country = domesticCountry
	return m, nil
}
