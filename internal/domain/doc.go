// Package domain models Metro Manila Development Authority (MMDA) traffic
// incident data and the rules for normalizing it.
//
// # Data Source
//
// Incidents come from the MMDA traffic incident dataset, published as one CSV
// file per year or per export batch. The files were produced by different
// tools over several years, so they disagree on encoding, header spelling
// and which columns are present.
//
// # MMDA Data Conventions
//
// Encoding:
//
//	Most files are UTF-8. Older exports are Windows-1252 and contain bytes
//	such as 0xF1 ("ñ" in "Las Piñas") that are invalid UTF-8. Decoding is
//	done per line so one bad line does not affect its neighbours.
//
// Headers:
//
//	Header names may carry stray spaces ("City ", " Date") and vary in
//	spelling ("Lat" vs "Latitude"). They are trimmed and mapped onto the
//	canonical columns City, Date, Time, Involved, Type, Latitude, Longitude.
//	Unknown columns are kept in RawRecord.Extra.
//
// Date format:
//
//	Mostly "MM/DD/YYYY", with ISO dates and month names in some files.
//	Numeric dates are read month first. Rows without a parseable date are
//	dropped.
//
// Time format:
//
//	12-hour "H:MM AM" ("2:15 PM"). Rows with other formats keep their place
//	in the table with no time and no hour.
//
// Coordinates:
//
//	Decimal degrees. Rows without both latitude and longitude are dropped
//	because every incident must be placeable on the map.
//
// Missing values:
//
//	Empty cells and the usual spreadsheet placeholders ("NA", "N/A", "null",
//	"nan" and friends) are treated as missing. Missing City and Involved
//	values become "Unknown".
//
// # Derived Fields
//
// MonthBucket is the "YYYY-MM" label of the incident date and sorts
// chronologically as a string. DayName is the English weekday of the date.
// Hour comes from the time of day through a text round trip; see
// [DeriveHour].
//
// # ID Generation
//
// Record IDs are truncated SHA-256 hashes of source|line|city|date|time|lat|lon,
// so loading the same files twice yields the same IDs. See [generateID].
package domain
