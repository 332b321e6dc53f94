package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

// commandError names the stage that failed so the message can say where.
type commandError struct {
	stage string
	err   error
}

func stageError(stage string, err error) error {
	return &commandError{stage: stage, err: err}
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.stage, e.err)
}

func (e *commandError) Unwrap() error {
	return e.err
}

// describeFailure renders err followed by a hint about what to check.
func describeFailure(err error) string {
	msg := err.Error()
	var ce *commandError
	if !errors.As(err, &ce) {
		msg = "error: " + msg
	}
	if hint := guidance(err); hint != "" {
		return msg + "\n  " + hint
	}
	return msg
}

func guidance(err error) string {
	var fetchErr *audit.FetchFailure
	switch {
	case errors.Is(err, context.Canceled):
		return "Interrupted before the run finished; no report was written."
	case errors.As(err, &fetchErr):
		switch {
		case fetchErr.StatusCode == http.StatusNotFound:
			return "The listing endpoint was not found. Check site.base_url and site.listing_path."
		case fetchErr.StatusCode == http.StatusUnauthorized || fetchErr.StatusCode == http.StatusForbidden:
			return "The listing endpoint refused anonymous access. Confirm the site allows anonymous browsing."
		case fetchErr.StatusCode >= 500:
			return "The site reported a server error. Try again later or check the site's status."
		default:
			return fmt.Sprintf("The listing endpoint answered HTTP %d. Check site.base_url and site.listing_path.", fetchErr.StatusCode)
		}
	case errors.Is(err, audit.ErrConnectivity):
		return "Could not reach the site. Check site.base_url and your network or proxy settings."
	case errors.Is(err, audit.ErrMalformedResponse),
		errors.Is(err, audit.ErrMissingField),
		errors.Is(err, audit.ErrMalformedTimestamp):
		return "The listing returned data in an unexpected shape; the API may have changed. " +
			"Set harvest.on_invalid_item=skip to continue past bad items."
	case errors.Is(err, audit.ErrWrite):
		return "Could not write the report. Close it if another program has it open, and check that the folder is writable."
	}
	var ce *commandError
	if errors.As(err, &ce) && ce.stage == "config" {
		return "Check the config file, PAGEAUDIT_* environment variables, and flags."
	}
	return ""
}
