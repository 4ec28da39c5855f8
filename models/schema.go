package models

// Canonical column names of the normalized price table.
const (
	ColDate      = "date"
	ColCommodity = "commodity"
	ColRegion    = "region"
	ColPrice     = "price"
)

// CanonicalColumns lists the canonical schema in output order.
var CanonicalColumns = []string{ColDate, ColCommodity, ColRegion, ColPrice}

// DefaultRegion is used when a source has no regional dimension.
const DefaultRegion = "National"

// DatePatterns are column names (case-insensitive, exact match) that identify
// the date axis of a raw table, in priority order.
var DatePatterns = []string{"date", "tanggal", "periode", "waktu", "time"}

// NonRegionColumns are column names that never count as regions when sniffing
// a wide layout.
var NonRegionColumns = []string{
	"date", "tanggal", "periode", "waktu", "time",
	"commodity", "komoditas", "price", "harga",
}

// PriceColumnHints and RegionColumnHints are substrings that identify the
// price and region columns of a long-format table.
var (
	PriceColumnHints  = []string{"price", "harga"}
	RegionColumnHints = []string{"region", "wilayah", "provinsi"}
)

// DateFormats are the explicit layouts tried after generic date parsing
// fails. They mirror %Y-%m-%d, %d-%m-%Y, %d/%m/%Y, %Y/%m/%d, %d %B %Y and
// %B %d, %Y.
var DateFormats = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"2 January 2006",
	"January 2, 2006",
}

// ISODate is the layout used whenever a date leaves the core as text.
const ISODate = "2006-01-02"
