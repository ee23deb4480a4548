package model

import "strings"

// segmentByVenueType is the fixed lookup from venue type to market segment.
// MarketSegment is derived here and nowhere else: it is set iff VenueType is
// set.
var segmentByVenueType = map[string]string{
	"stadium":           "sports",
	"arena":             "sports",
	"velodrome":         "sports",
	"concert hall":      "performing_arts",
	"opera house":       "performing_arts",
	"theater":           "performing_arts",
	"theatre":           "performing_arts",
	"amphitheater":      "performing_arts",
	"convention center": "conferencing",
	"conference center": "conferencing",
	"exhibition center":  "conferencing",
	"nightclub":         "hospitality",
	"casino":            "hospitality",
	"hotel":             "hospitality",
	"resort":            "hospitality",
	"cruise ship":       "hospitality",
	"theme park":        "attractions",
	"museum":            "attractions",
	"planetarium":       "attractions",
	"house of worship":  "institutional",
	"university":        "institutional",
	"auditorium":        "institutional",
}

// SegmentForVenueType returns the market segment for a venue type, or ""
// when the venue type is absent or unknown.
func SegmentForVenueType(venueType string) string {
	if venueType == "" {
		return ""
	}
	return segmentByVenueType[strings.ToLower(strings.TrimSpace(venueType))]
}

// DeriveSegment applies the venue-type lookup to the record's fields,
// overwriting any independently asserted segment.
func (b *BusinessFields) DeriveSegment() {
	b.MarketSegment = SegmentForVenueType(b.VenueType)
}
