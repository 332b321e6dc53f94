// Command pageaudit finds the wiki pages anyone can read without signing in
// and checks that they stay that way.
//
// Subcommands:
//   - harvest walks the content listing anonymously, drops pages in archived
//     spaces, flags pages not edited since the threshold year, and writes a
//     CSV report to a local path or a gs:// object.
//   - verify reads that report back, samples it, and re-requests the sampled
//     URLs with bounded concurrency, printing a pass/fail breakdown.
//
// Configuration comes from an optional file (--config), PAGEAUDIT_* environment
// variables (PAGEAUDIT_SITE_BASE_URL, PAGEAUDIT_VERIFY_SAMPLE_RATE, ...), and
// the flags below, in increasing order of precedence. Setting
// metrics.listen_addr serves /metrics, /healthz, and /progress while a run is
// in flight; setting notify.topic publishes a JSON summary of each run to
// Pub/Sub.
//
// A failed harvest exits with status 1 after printing which stage failed and
// what to check. Unreachable pages found by verify are reported, not treated
// as a failure of the command.
package main
