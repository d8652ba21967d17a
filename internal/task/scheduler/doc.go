// Package scheduler fires refresh jobs from cron and interval triggers.
//
// Every trigger runs in the configured timezone, which is also the host's
// notion of "today". A trigger that is still running when it fires again
// is skipped.
package scheduler
