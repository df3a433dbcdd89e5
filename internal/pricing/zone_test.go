package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneResolverSteelTable(t *testing.T) {
	r := NewZoneResolver(DefaultZoneTable())

	tests := []struct {
		name     string
		input    string
		wantZone string
		wantFee  string
	}{
		{name: "metro postcode", input: "5000", wantZone: ZoneMetro, wantFee: "68.18"},
		{name: "outer metro postcode inside address", input: "12 Main Rd, Salisbury SA 5108", wantZone: ZoneOuterMetro, wantFee: "81.80"},
		{name: "regional postcode", input: "5211", wantZone: ZoneRegional, wantFee: "150.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.input, true)
			assert.Equal(t, tt.wantZone, got.Zone)
			assert.True(t, dec(tt.wantFee).Equal(got.Fee), "fee %s", got.Fee)
			assert.False(t, got.NeedsManualQuote)
		})
	}
}

func TestZoneResolverNumberedTable(t *testing.T) {
	r := NewZoneResolver(DefaultZoneTable())

	tests := []struct {
		input    string
		wantZone string
		wantFee  string
		wantPOA  bool
	}{
		{input: "5000", wantZone: "Zone 1", wantFee: "143.50"},
		{input: "5108", wantZone: "Zone 2", wantFee: "181.50"},
		{input: "5251", wantZone: "Zone 3", wantFee: "242.00"},
		{input: "5211", wantZone: "Zone 4", wantFee: "302.50"},
		{input: "5540", wantZone: "Zone 5", wantFee: "0", wantPOA: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := r.Resolve(tt.input, false)
			assert.Equal(t, tt.wantZone, got.Zone)
			assert.True(t, dec(tt.wantFee).Equal(got.Fee), "fee %s", got.Fee)
			assert.Equal(t, tt.wantPOA, got.POA)
			assert.Equal(t, tt.wantPOA, got.NeedsManualQuote)
		})
	}
}

func TestZoneResolverUnknownNeedsManualQuote(t *testing.T) {
	r := NewZoneResolver(nil)

	for _, steel := range []bool{true, false} {
		got := r.Resolve("Alice Springs NT 0870", steel)
		assert.Equal(t, ZoneUnknown, got.Zone)
		assert.True(t, got.Fee.IsZero())
		assert.True(t, got.NeedsManualQuote)
	}

	got := r.Resolve("   ", false)
	assert.Equal(t, ZoneUnknown, got.Zone)
}

func TestZoneTablePostcodeIsWholeToken(t *testing.T) {
	table := NewZoneTable([]ZoneEntry{
		{Postcode: "5000", Suburb: "Adelaide", SteelZone: "metro", Zone: "1"},
		{Postcode: "50001", Suburb: "Elsewhere", SteelZone: "regional", Zone: "4"},
	})

	entry, ok := table.Match("PO Box 50001")
	require.True(t, ok)
	assert.Equal(t, "50001", entry.Postcode)
}

func TestZoneTableFirstSuburbMatchWins(t *testing.T) {
	table := NewZoneTable([]ZoneEntry{
		{Postcode: "5006", Suburb: "North Adelaide", SteelZone: "metro", Zone: "2"},
		{Postcode: "5000", Suburb: "Adelaide", SteelZone: "metro", Zone: "1"},
	})

	entry, ok := table.Match("42 O'Connell St, North Adelaide")
	require.True(t, ok)
	assert.Equal(t, "5006", entry.Postcode)
}

func TestZoneResolverUnrecognisedSteelZoneFallsBackToRegional(t *testing.T) {
	r := NewZoneResolver(NewZoneTable([]ZoneEntry{{Postcode: "5700", Suburb: "Port Augusta", Zone: "5"}}))

	got := r.Resolve("5700", true)
	assert.Equal(t, ZoneRegional, got.Zone)
	assert.True(t, dec("150.00").Equal(got.Fee))
}

func TestLoadZoneTableFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`zones:
  - postcode: 5063
    suburb: Eastwood
    steel_zone: Metro
    zone: 1
  - postcode: "5255"
    suburb: Strathalbyn
    steel_zone: regional
    zone: "4"
`), 0o600))

	table, err := LoadZoneTable(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	r := NewZoneResolver(table)
	assert.Equal(t, ZoneMetro, r.Resolve("Eastwood", true).Zone)
	assert.Equal(t, "Zone 4", r.Resolve("5255", false).Zone)
}

func TestLoadZoneTableRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte("zones: []\n"), 0o600))

	_, err := LoadZoneTable(path)
	assert.Error(t, err)
}

func TestZoneTableVersionTracksContent(t *testing.T) {
	rows := []ZoneEntry{{Postcode: "5000", Suburb: "Adelaide", SteelZone: "metro", Zone: "1"}}
	a := NewZoneTable(rows)
	b := NewZoneTable([]ZoneEntry{{Postcode: " 5000 ", Suburb: "ADELAIDE", SteelZone: "Metro", Zone: "1"}})
	assert.Equal(t, a.Version(), b.Version())
	assert.Len(t, a.Version(), 12)

	changed := NewZoneTable([]ZoneEntry{{Postcode: "5000", Suburb: "Adelaide", SteelZone: "metro", Zone: "2"}})
	assert.NotEqual(t, a.Version(), changed.Version())
	assert.Equal(t, DefaultZoneTable().Version(), NewZoneResolver(nil).Version())
}
