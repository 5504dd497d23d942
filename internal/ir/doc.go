// Package ir holds the identifier and value types shared by every other
// sequencer package.
//
// ir imports nothing internal. Registries, graphs, processors and the
// engine all speak in terms of ElementID, ScheduleID and Variable so that
// no two of those packages need to import each other just to share a key.
//
// Canonical JSON (MarshalCanonical) is the only encoding used for
// fingerprints and golden traces. It follows RFC 8785 key ordering and
// NFC-normalizes strings so the same graph always produces the same bytes.
package ir
