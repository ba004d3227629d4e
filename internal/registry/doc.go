// Package registry holds the mapping from stage kinds, as named in pipeline
// files, to the Go handlers that implement them, together with the declared
// input definitions used for argument decoding and startup validation.
package registry
