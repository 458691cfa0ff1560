package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

func TestReferenceTableLookup(t *testing.T) {
	t.Parallel()

	table, warnings := NewReferenceTable([]cookie.ReferenceEntry{
		{NamePattern: "_ga*", Vendor: "Google", Category: cookie.CategoryPerformance},
		{NamePattern: "_gac_*", Vendor: "Google Ads", Category: cookie.CategoryTargeting},
		{NamePattern: "session", Vendor: "Site", Category: cookie.CategoryStrictlyNecessary},
		{NamePattern: "_hj", Vendor: "Hotjar", Category: cookie.CategoryPerformance, IsWildcard: true},
	})
	require.Empty(t, warnings)
	require.Equal(t, 4, table.Len())

	tests := []struct {
		name       string
		cookie     string
		wantVendor string
		wantMethod cookie.Method
		wantOK     bool
	}{
		{name: "exact", cookie: "session", wantVendor: "Site", wantMethod: cookie.MethodDatabase, wantOK: true},
		{name: "exact is case sensitive", cookie: "Session", wantOK: false, wantMethod: cookie.MethodUnknown},
		{name: "wildcard matches bare prefix", cookie: "_ga", wantVendor: "Google", wantMethod: cookie.MethodWildcard, wantOK: true},
		{name: "wildcard matches suffix", cookie: "_ga_XYZ", wantVendor: "Google", wantMethod: cookie.MethodWildcard, wantOK: true},
		{name: "longest prefix wins", cookie: "_gac_123", wantVendor: "Google Ads", wantMethod: cookie.MethodWildcard, wantOK: true},
		{name: "flagged wildcard without star", cookie: "_hjSessionUser_1", wantVendor: "Hotjar", wantMethod: cookie.MethodWildcard, wantOK: true},
		{name: "flagged wildcard exact name", cookie: "_hj", wantVendor: "Hotjar", wantMethod: cookie.MethodDatabase, wantOK: true},
		{name: "miss", cookie: "unrelated", wantOK: false, wantMethod: cookie.MethodUnknown},
		{name: "empty name", cookie: "", wantOK: false, wantMethod: cookie.MethodUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			entry, method, ok := table.Lookup(tc.cookie)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantMethod, method)
			assert.Equal(t, tc.wantVendor, entry.Vendor)
		})
	}
}

func TestReferenceTableTiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	table, _ := NewReferenceTable([]cookie.ReferenceEntry{
		{NamePattern: "ab*", Vendor: "first", Category: cookie.CategoryFunctional},
		{NamePattern: "ab", Vendor: "second", Category: cookie.CategoryTargeting, IsWildcard: true},
		{NamePattern: "dup", Vendor: "one", Category: cookie.CategoryFunctional},
		{NamePattern: "dup", Vendor: "two", Category: cookie.CategoryTargeting},
	})

	entry, method, ok := table.Lookup("abc")
	require.True(t, ok)
	assert.Equal(t, cookie.MethodWildcard, method)
	assert.Equal(t, "first", entry.Vendor)

	entry, _, ok = table.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, "one", entry.Vendor)
}

func TestReferenceTableSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	table, warnings := NewReferenceTable([]cookie.ReferenceEntry{
		{NamePattern: "", Category: cookie.CategoryFunctional},
		{NamePattern: "ok", Category: cookie.CategoryFunctional},
		{NamePattern: "nocat"},
		{NamePattern: "*", Category: cookie.CategoryTargeting},
	})
	assert.Equal(t, 1, table.Len())
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "row 1")
	assert.Contains(t, warnings[1], "row 3")
	assert.Contains(t, warnings[2], "row 4")
	assert.Equal(t, warnings, table.Warnings())
}

func TestNilReferenceTableMisses(t *testing.T) {
	t.Parallel()

	var table *ReferenceTable
	_, _, ok := table.Lookup("anything")
	assert.False(t, ok)
	assert.Zero(t, table.Len())
	assert.Nil(t, table.Warnings())
}
