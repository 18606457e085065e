package address

import (
	"fmt"
	"sort"

	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
	"github.com/Aman-CERP/addresolve/internal/unit"
)

type field struct {
	get func(*Address) string
	set func(*Address, string)
}

// overridable is the closed set of paths a provider may override.
// Key and coordinates are not on it.
var overridable = map[string]field{
	"value":       {func(a *Address) string { return a.Value }, func(a *Address, v string) { a.Value = v }},
	"country":     {func(a *Address) string { return a.Country }, func(a *Address, v string) { a.Country = v }},
	"region":      {func(a *Address) string { return a.Region }, func(a *Address, v string) { a.Region = v }},
	"area":        {func(a *Address) string { return a.Area }, func(a *Address, v string) { a.Area = v }},
	"city":        {func(a *Address) string { return a.City }, func(a *Address, v string) { a.City = v }},
	"settlement":  {func(a *Address) string { return a.Settlement }, func(a *Address, v string) { a.Settlement = v }},
	"street":      {func(a *Address) string { return a.Street }, func(a *Address, v string) { a.Street = v }},
	"house":       {func(a *Address) string { return a.House }, func(a *Address, v string) { a.House = v }},
	"block":       {func(a *Address) string { return a.Block }, func(a *Address, v string) { a.Block = v }},
	"postal_code": {func(a *Address) string { return a.PostalCode }, func(a *Address, v string) { a.PostalCode = v }},
}

// OverridablePaths lists the accepted override paths, sorted.
func OverridablePaths() []string {
	paths := make([]string, 0, len(overridable))
	for p := range overridable {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Unit carries unit fields extracted from the raw item.
type Unit struct {
	Type unit.Type
	Name string
}

// Process applies overrides to a copy of base and merges u into it.
//
// For every path the current value is read and stored in Overridden (the
// first original wins) before the override is written. Paths outside
// OverridablePaths are skipped and returned as errors; they never fail the
// record. Applying the same overrides again leaves the visible fields as
// they are and only extends OverrideHistory.
func Process(base Address, overrides map[string]string, u *Unit) (Address, []error) {
	a := base.Clone()
	var skipped []error

	paths := make([]string, 0, len(overrides))
	for p := range overrides {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		f, ok := overridable[path]
		if !ok {
			skipped = append(skipped, rerrors.New(rerrors.ErrCodeOverridePath,
				fmt.Sprintf("override path %q is not overridable", path), nil).
				WithDetail("path", path).
				WithDetail("key", a.Key))
			continue
		}

		original := f.get(&a)
		if a.Overridden == nil {
			a.Overridden = make(map[string]string)
		}
		if _, seen := a.Overridden[path]; !seen {
			a.Overridden[path] = original
		}
		a.OverrideHistory = append(a.OverrideHistory, OverrideRecord{
			Path:     path,
			Original: original,
			Override: overrides[path],
		})
		f.set(&a, overrides[path])
	}

	if u != nil {
		a.UnitType = u.Type
		a.UnitName = u.Name
	}
	return a, skipped
}
