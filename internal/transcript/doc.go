// ABOUTME: Package documentation for the transcript package
// ABOUTME: Describes the append-only log and the HTML exporter

// Package transcript records conversations for humans.
//
// Log appends one timestamped line per conversation event to a plain text
// file, flushed per line. ExportHTML renders persisted transcript entries
// into a self-contained HTML page, passing agent replies through a
// markdown renderer so formatting in the replies survives.
package transcript
