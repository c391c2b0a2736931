package referral_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandfx/commission-engine/referral"
)

func TestMustParseMoney(t *testing.T) {
	// GIVEN: decimal strings as persisted by Money.String()
	// WHEN: parsing them back
	// THEN: values round-trip exactly, and anything else panics loudly

	assert.True(t, referral.MustParseMoney("12.34").Equal(referral.NewMoney(12.34)))
	assert.True(t, referral.MustParseMoney("0").IsZero())
	assert.True(t, referral.MustParseMoney("-3.5").IsNegative())

	assert.Panics(t, func() { referral.MustParseMoney("not-a-number") })
	assert.Panics(t, func() { referral.MustParseMoney("") })
}
