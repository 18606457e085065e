package provider

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/addresolve/internal/address"
	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// each connection would get its own in-memory database
	db.SetMaxOpenConns(1)

	store, err := NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

var lenina5 = address.Address{
	Key:    "addr-1",
	Value:  "г Москва, ул Ленина, д 5",
	City:   "Москва",
	Street: "ул Ленина",
	House:  "5",
}

func TestStore_SaveAndLookupByAlias(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	err := store.Save(ctx, "", lenina5, []string{"Ленина 5"}, map[string]string{"city": "Москва (ЦАО)"})
	require.NoError(t, err)

	entry, err := store.Lookup(ctx, "", "  ЛЕНИНА,  5 ")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "addr-1", entry.Address.Key)
	assert.Equal(t, "ул Ленина", entry.Address.Street)
	assert.Equal(t, map[string]string{"city": "Москва (ЦАО)"}, entry.Overrides)

	entry, err = store.Lookup(ctx, "", lenina5.Value)
	require.NoError(t, err)
	require.NotNil(t, entry)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_LookupMissIsNil(t *testing.T) {
	store := setupTestStore(t)

	entry, err := store.Lookup(context.Background(), "", "nowhere")
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = store.Lookup(context.Background(), "", " ,, ")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStore_TenantFallsBackToShared(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Save(ctx, "", lenina5, nil, nil))

	tenantOnly := lenina5
	tenantOnly.Key = "addr-acme"
	require.NoError(t, store.Save(ctx, "acme", tenantOnly, []string{"офис acme"}, nil))

	entry, err := store.Lookup(ctx, "acme", lenina5.Value)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "addr-acme", entry.Address.Key, "tenant row shadows shared row")
	assert.Equal(t, "acme", entry.TenantID)

	entry, err = store.Lookup(ctx, "other", lenina5.Value)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "addr-1", entry.Address.Key)
	assert.Equal(t, "", entry.TenantID)

	entry, err = store.Lookup(ctx, "other", "офис acme")
	require.NoError(t, err)
	assert.Nil(t, entry, "tenant rows are not visible to other tenants")
}

func TestStore_SaveUpserts(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Save(ctx, "", lenina5, nil, nil))
	updated := lenina5
	updated.PostalCode = "101000"
	require.NoError(t, store.Save(ctx, "", updated, nil, nil))

	entry, err := store.Lookup(ctx, "", lenina5.Value)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "101000", entry.Address.PostalCode)
	assert.Nil(t, entry.Overrides)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_SaveRejectsInvalidAddress(t *testing.T) {
	store := setupTestStore(t)
	err := store.Save(context.Background(), "", address.Address{Value: "no key"}, nil, nil)
	assert.Equal(t, rerrors.ErrCodeMalformedAddress, rerrors.GetCode(err))
}

func TestStore_SaveDropsTransientFields(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	a := lenina5
	a.UnitType = "flat"
	a.UnitName = "12"
	a.Provider = GeocoderName
	a.Overridden = map[string]string{"city": "x"}
	require.NoError(t, store.Save(ctx, "", a, nil, nil))

	entry, err := store.Lookup(ctx, "", a.Value)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Empty(t, entry.Address.UnitType)
	assert.Empty(t, entry.Address.UnitName)
	assert.Empty(t, entry.Address.Provider)
	assert.Nil(t, entry.Address.Overridden)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	require.NoError(t, store.Save(ctx, "", lenina5, nil, nil))

	removed, err := store.Delete(ctx, "", "Г. Москва, ул. Ленина, д. 5")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, "", lenina5.Value)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_ClosedStoreIsUnavailable(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Lookup(context.Background(), "", "x")
	assert.Equal(t, rerrors.ErrCodeStoreUnavailable, rerrors.GetCode(err))
}

func TestOpenStore_FileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "known.db")

	store, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "", lenina5, nil, nil))
	require.NoError(t, store.Close())

	store, err = OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, path, store.Path())
	entry, err := store.Lookup(ctx, "", lenina5.Value)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "addr-1", entry.Address.Key)
}

func TestStoredProvider(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	require.NoError(t, store.Save(ctx, "", lenina5, []string{"Ленина 5"}, map[string]string{"house": "5А"}))

	p := NewStored(store)
	assert.Equal(t, StoredName, p.Name())
	assert.True(t, p.IsEnabled("anything", Scope{}))

	s, err := p.Prepare(ctx, Scope{TenantID: "acme"})
	require.NoError(t, err)

	res, err := s.Search(ctx, "ленина 5")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, map[string]string{"house": "5А"}, res.Overrides)

	addrs := p.Normalize(res)
	require.Len(t, addrs, 1)
	assert.Equal(t, "addr-1", addrs[0].Key)
	assert.Equal(t, StoredName, addrs[0].Provider)

	res, err = s.Search(ctx, "unknown place")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Nil(t, p.Normalize(nil))
}

func TestStore_DBIsShared(t *testing.T) {
	store := setupTestStore(t)

	// Given: another table created through the shared handle
	_, err := store.DB().Exec(`CREATE TABLE side (id INTEGER)`)
	require.NoError(t, err)

	// Then: the store still works on the same database
	require.NoError(t, store.Save(context.Background(), "", lenina5, nil, nil))
	var n int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name IN ('side', 'known_addresses')`).Scan(&n))
	assert.Equal(t, 2, n)
}
