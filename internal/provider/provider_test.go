package provider

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/addresolve/internal/address"
)

// fakeProvider answers from a fixed table and counts searches.
type fakeProvider struct {
	name    string
	answers map[string]*Result
	err     error
	calls   atomic.Int32
}

func (f *fakeProvider) Name() string                 { return f.name }
func (f *fakeProvider) IsEnabled(string, Scope) bool { return true }

func (f *fakeProvider) Prepare(context.Context, Scope) (Searcher, error) {
	return SearcherFunc(func(_ context.Context, q string) (*Result, error) {
		f.calls.Add(1)
		if f.err != nil {
			return nil, f.err
		}
		return f.answers[NormalizeQuery(q)], nil
	}), nil
}

func (f *fakeProvider) Normalize(res *Result) []address.Address {
	if res == nil {
		return nil
	}
	a, _ := res.Raw.(address.Address)
	return address.Filter([]address.Address{a})
}

func TestNewRegistry_PreservesOrder(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}

	reg, err := NewRegistry(b, a)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, reg.Names())
	assert.Equal(t, 2, reg.Len())

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&fakeProvider{name: "a"}, &fakeProvider{name: "a"})
	assert.Error(t, err)
}

func TestNewRegistry_RejectsNil(t *testing.T) {
	_, err := NewRegistry(&fakeProvider{name: "a"}, nil)
	assert.Error(t, err)
}

func TestRegistry_ProvidersIsACopy(t *testing.T) {
	reg, err := NewRegistry(&fakeProvider{name: "a"})
	require.NoError(t, err)

	list := reg.Providers()
	list[0] = &fakeProvider{name: "z"}

	assert.Equal(t, []string{"a"}, reg.Names())
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Москва,  ул. Ленина, д.5 ", "москва ул ленина д 5"},
		{"Ёлкино", "елкино"},
		{"", ""},
		{" ,.; ", ""},
		{"Main St. 5", "main st 5"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.in))
		})
	}
}
