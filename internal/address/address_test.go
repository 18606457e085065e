package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
	"github.com/Aman-CERP/addresolve/internal/unit"
)

func sample() Address {
	return Address{
		Key:    "fias-7b3c",
		Value:  "г Москва, ул Тверская, д 7",
		City:   "Москва",
		Street: "Тверская",
		House:  "7",
	}
}

func TestProcess_RecordsOriginalBeforeOverride(t *testing.T) {
	// Given: a provider result overriding the city
	base := sample()

	// When: processing
	got, skipped := Process(base, map[string]string{"city": "X"}, nil)

	// Then: visible city is the override and the original is kept for audit
	assert.Empty(t, skipped)
	assert.Equal(t, "X", got.City)
	assert.Equal(t, "Москва", got.Overridden["city"])
	assert.Equal(t, []OverrideRecord{{Path: "city", Original: "Москва", Override: "X"}}, got.OverrideHistory)

	// And: the input was not mutated
	assert.Equal(t, "Москва", base.City)
	assert.Nil(t, base.Overridden)
}

func TestProcess_IdempotentOnVisibleFields(t *testing.T) {
	overrides := map[string]string{"city": "Санкт-Петербург", "postal_code": "190000"}

	once, _ := Process(sample(), overrides, nil)
	twice, _ := Process(once, overrides, nil)

	// visible fields stabilize
	assert.Equal(t, once.City, twice.City)
	assert.Equal(t, once.PostalCode, twice.PostalCode)
	assert.Equal(t, once.Value, twice.Value)

	// the first original survives, history grows
	assert.Equal(t, "Москва", twice.Overridden["city"])
	assert.Equal(t, "", twice.Overridden["postal_code"])
	assert.Len(t, once.OverrideHistory, 2)
	assert.Len(t, twice.OverrideHistory, 4)
	assert.Equal(t, "Санкт-Петербург", twice.OverrideHistory[2].Original)
}

func TestProcess_AppliesPathsInSortedOrder(t *testing.T) {
	got, _ := Process(sample(), map[string]string{"street": "Арбат", "house": "1", "city": "Москва"}, nil)

	var order []string
	for _, r := range got.OverrideHistory {
		order = append(order, r.Path)
	}
	assert.Equal(t, []string{"city", "house", "street"}, order)
}

func TestProcess_SkipsUnknownPaths(t *testing.T) {
	got, skipped := Process(sample(), map[string]string{"key": "hijack", "data.flat": "5", "city": "Тула"}, nil)

	require.Len(t, skipped, 2)
	for _, err := range skipped {
		assert.Equal(t, rerrors.ErrCodeOverridePath, rerrors.GetCode(err))
	}
	assert.Equal(t, "fias-7b3c", got.Key)
	assert.Equal(t, "Тула", got.City)
	assert.NotContains(t, got.Overridden, "key")
}

func TestProcess_MergesUnit(t *testing.T) {
	got, _ := Process(sample(), nil, &Unit{Type: unit.Warehouse, Name: "212"})

	assert.Equal(t, unit.Warehouse, got.UnitType)
	assert.Equal(t, "212", got.UnitName)
	assert.Nil(t, got.Overridden)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, sample().Validate())

	noKey := sample()
	noKey.Key = " "
	assert.Equal(t, rerrors.ErrCodeMalformedAddress, rerrors.GetCode(noKey.Validate()))

	noValue := sample()
	noValue.Value = ""
	assert.Error(t, noValue.Validate())
}

func TestFilter_DropsMalformed(t *testing.T) {
	bad := sample()
	bad.Value = ""

	got := Filter([]Address{bad, sample()})

	require.Len(t, got, 1)
	assert.Equal(t, "fias-7b3c", got[0].Key)
	assert.Empty(t, Filter(nil))
}

func TestDeriveKey_StableAcrossCaseAndSpacing(t *testing.T) {
	k1 := DeriveKey("г Москва,  ул Тверская, д 7")
	k2 := DeriveKey("Г МОСКВА, ул Тверская, д 7 ")

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 36)
	assert.NotEqual(t, k1, DeriveKey("г Москва, ул Тверская, д 8"))
}

func TestClone_DoesNotShareState(t *testing.T) {
	a, _ := Process(sample(), map[string]string{"city": "X"}, nil)
	b := a.Clone()

	b.Overridden["city"] = "changed"
	b.OverrideHistory[0].Override = "changed"

	assert.Equal(t, "Москва", a.Overridden["city"])
	assert.Equal(t, "X", a.OverrideHistory[0].Override)
}

func TestOverridablePaths(t *testing.T) {
	paths := OverridablePaths()

	assert.Contains(t, paths, "city")
	assert.NotContains(t, paths, "key")
	assert.IsIncreasing(t, paths)
}
