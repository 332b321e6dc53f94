// Package audit defines the records, outcomes, errors, and collaborator
// interfaces shared by the harvest and verification pipelines of the public
// page audit.
package audit
