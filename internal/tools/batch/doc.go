// Package batch provides helpers for tools that accept one id or many.
//
// It parses parameters given as a single string, an array, or a JSON array
// encoded in a string, runs an operation per id without letting one failure
// stop the rest, and reports the per-id results with success and failure
// counts.
package batch
