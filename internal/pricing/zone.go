package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"wallquote/backend/internal/domain"
)

const (
	ZoneMetro      = "Metro"
	ZoneOuterMetro = "Outer Metro"
	ZoneRegional   = "Regional"
	ZoneUnknown    = "Unknown"
)

var (
	steelFees = map[string]decimal.Decimal{
		ZoneMetro:      decimal.RequireFromString("68.18"),
		ZoneOuterMetro: decimal.RequireFromString("81.80"),
		ZoneRegional:   decimal.RequireFromString("150.00"),
	}

	// Zone 5 is priced on application.
	numberedFees = map[string]decimal.Decimal{
		"1": decimal.RequireFromString("143.50"),
		"2": decimal.RequireFromString("181.50"),
		"3": decimal.RequireFromString("242.00"),
		"4": decimal.RequireFromString("302.50"),
		"5": decimal.Zero,
	}
)

// ZoneEntry is one row of the postcode reference table. SteelZone is the
// metro/outer metro/regional bucket; Zone is the numbered bucket 1 to 5.
type ZoneEntry struct {
	Postcode  string `yaml:"postcode" json:"postcode"`
	Suburb    string `yaml:"suburb" json:"suburb"`
	SteelZone string `yaml:"steel_zone" json:"steel_zone"`
	Zone      string `yaml:"zone" json:"zone"`
}

type zoneFile struct {
	Zones []ZoneEntry `yaml:"zones"`
}

// ZoneTable is ordered; earlier rows win ties.
type ZoneTable struct {
	entries []ZoneEntry
	version string
}

func NewZoneTable(entries []ZoneEntry) *ZoneTable {
	cleaned := make([]ZoneEntry, 0, len(entries))
	for _, e := range entries {
		e.Postcode = strings.TrimSpace(e.Postcode)
		e.Suburb = strings.ToLower(strings.TrimSpace(e.Suburb))
		e.SteelZone = strings.ToLower(strings.TrimSpace(e.SteelZone))
		e.Zone = strings.TrimSpace(e.Zone)
		if e.Postcode == "" && e.Suburb == "" {
			continue
		}
		cleaned = append(cleaned, e)
	}

	h := sha256.New()
	for _, e := range cleaned {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1e", e.Postcode, e.Suburb, e.SteelZone, e.Zone)
	}
	return &ZoneTable{entries: cleaned, version: hex.EncodeToString(h.Sum(nil))[:12]}
}

func LoadZoneTable(path string) (*ZoneTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone table: %w", err)
	}
	var doc zoneFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse zone table %s: %w", path, err)
	}
	if len(doc.Zones) == 0 {
		return nil, fmt.Errorf("zone table %s has no zones", path)
	}
	return NewZoneTable(doc.Zones), nil
}

func (t *ZoneTable) Len() int {
	return len(t.entries)
}

// Version is a content hash of the table. Two tables with the same rows in
// the same order share a version.
func (t *ZoneTable) Version() string {
	return t.version
}

// Match finds the reference row for free-form address text. A postcode that
// appears as a whole token wins over a suburb substring; within each pass the
// first row in table order is returned.
func (t *ZoneTable) Match(input string) (ZoneEntry, bool) {
	text := strings.ToLower(strings.TrimSpace(input))
	if text == "" || t == nil {
		return ZoneEntry{}, false
	}

	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[tok] = struct{}{}
	}

	for _, e := range t.entries {
		if e.Postcode == "" {
			continue
		}
		if _, ok := tokens[e.Postcode]; ok {
			return e, true
		}
	}
	for _, e := range t.entries {
		if e.Suburb != "" && strings.Contains(text, e.Suburb) {
			return e, true
		}
	}
	return ZoneEntry{}, false
}

type ZoneResolver struct {
	table *ZoneTable
}

func NewZoneResolver(table *ZoneTable) *ZoneResolver {
	if table == nil {
		table = DefaultZoneTable()
	}
	return &ZoneResolver{table: table}
}

// Version identifies the loaded table, so cached quotes from another table
// are never reused.
func (r *ZoneResolver) Version() string {
	return r.table.Version()
}

// Resolve maps a postcode or address to a zone and flat delivery fee. A miss
// is not an error: it yields the Unknown zone with a zero fee flagged for a
// manual quote.
func (r *ZoneResolver) Resolve(input string, isSteel bool) domain.ZoneQuote {
	entry, ok := r.table.Match(input)
	if !ok {
		return domain.ZoneQuote{Zone: ZoneUnknown, Fee: decimal.Zero, NeedsManualQuote: true}
	}
	if isSteel {
		return steelQuote(entry.SteelZone)
	}
	return numberedQuote(entry.Zone)
}

func steelQuote(steelZone string) domain.ZoneQuote {
	label := ZoneRegional
	switch steelZone {
	case "metro":
		label = ZoneMetro
	case "outer metro", "outer_metro", "outer-metro":
		label = ZoneOuterMetro
	}
	return domain.ZoneQuote{Zone: label, Fee: steelFees[label]}
}

func numberedQuote(zone string) domain.ZoneQuote {
	fee, known := numberedFees[zone]
	quote := domain.ZoneQuote{Zone: "Zone " + zone, Fee: fee}
	if !known {
		quote.Fee = decimal.Zero
		quote.NeedsManualQuote = true
		return quote
	}
	if zone == "5" {
		quote.POA = true
		quote.NeedsManualQuote = true
	}
	return quote
}

// DefaultZoneTable is a small built-in table used when no reference file is
// configured.
func DefaultZoneTable() *ZoneTable {
	return NewZoneTable([]ZoneEntry{
		{Postcode: "5000", Suburb: "Adelaide", SteelZone: "metro", Zone: "1"},
		{Postcode: "5006", Suburb: "North Adelaide", SteelZone: "metro", Zone: "1"},
		{Postcode: "5031", Suburb: "Mile End", SteelZone: "metro", Zone: "1"},
		{Postcode: "5108", Suburb: "Salisbury", SteelZone: "outer metro", Zone: "2"},
		{Postcode: "5112", Suburb: "Elizabeth", SteelZone: "outer metro", Zone: "2"},
		{Postcode: "5159", Suburb: "Aberfoyle Park", SteelZone: "outer metro", Zone: "2"},
		{Postcode: "5171", Suburb: "McLaren Vale", SteelZone: "outer metro", Zone: "3"},
		{Postcode: "5251", Suburb: "Mount Barker", SteelZone: "regional", Zone: "3"},
		{Postcode: "5211", Suburb: "Victor Harbor", SteelZone: "regional", Zone: "4"},
		{Postcode: "5540", Suburb: "Port Pirie", SteelZone: "regional", Zone: "5"},
	})
}
