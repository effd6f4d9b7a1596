// Package contracts defines the canonical data model shared by the audit
// pipeline: documents, template specs, extraction results, findings, audit
// reports, and the trace artifacts derived from them.
//
// Types here are pure data. Behavior lives in the packages that own each
// stage (registry, selector, calibration, analyzer, pipeline). Wire shapes
// are stable: JSON field names MUST NOT change between releases because
// downstream consumers compare artifacts byte-for-byte.
package contracts
