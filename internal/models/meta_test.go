package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupBenefitType(t *testing.T) {
	for _, bt := range BenefitTypes {
		got := LookupBenefitType(bt.ID)
		assert.Equal(t, bt, got)
	}

	unknown := LookupBenefitType(99)
	assert.Equal(t, int64(99), unknown.ID)
	assert.Empty(t, unknown.Name)
	assert.Empty(t, unknown.Description)
}

func TestCountries(t *testing.T) {
	seen := map[string]bool{}
	for i, c := range Countries {
		assert.Equal(t, int64(i+1), c.ID, "country ids are sequential")
		assert.Len(t, c.CountryCode, 2)
		assert.False(t, seen[c.CountryCode], "duplicate code %s", c.CountryCode)
		seen[c.CountryCode] = true
	}
}

func TestDefaultRoles(t *testing.T) {
	assert.Equal(t, RoleAdministrator, DefaultRoles[0].Name)
	assert.Equal(t, RoleExternalOfficer, DefaultRoles[3].Name)
}
