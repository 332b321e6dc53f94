// Package report writes the harvested pages as CSV and reads them back for
// verification. View counts from an analytics export can enrich the report.
package report
