// Package pipeline runs the four reconstruction steps in order against a
// dataset directory, gating each step on the previous one succeeding and on
// the filesystem artifacts it is expected to leave behind.
//
// Flow: resolve the dataset root, require images/, create sparse/, then
// feature extraction, exhaustive matching, sparse reconstruction, require
// sparse/0, create the conversion output directory, model conversion, and
// finally report where the converted model was written.
//
// Every failure is returned as a *Error with a Kind; the caller decides the
// process exit status.
package pipeline
