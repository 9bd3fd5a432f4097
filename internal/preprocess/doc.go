// Package preprocess shrinks filtered log entries before they are scored and
// sent to a model.
//
// Three slimming modes trade fidelity for size:
//
//  1. Light - collapse consecutive duplicates, cap stack frames at 10,
//     truncate messages at 500 characters
//  2. Aggressive - group entries by pattern key (timestamps, UUIDs, paths,
//     addresses and numbers replaced by placeholders), sort by time,
//     cap frames at 5, truncate at 250 characters
//  3. Ultra - keep only critical entries (frames capped at 2, messages at
//     100 characters) and replace everything else with one SUMMARY entry
//     per error category
//
// Redaction optionally runs first, replacing secrets with
// correlation-preserving placeholders such as [IPV4:a3f2].
//
// Configuration via ~/.triage.yaml:
//
//	pipeline:
//	  slim_mode: aggressive
//	redaction:
//	  enabled: true
//	  patterns:
//	    - ipv4
//	    - email
//	    - api_key
package preprocess
