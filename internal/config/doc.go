// Package config defines the format-agnostic model of a pipeline
// configuration, along with the Loader and Converter interfaces that
// format-specific implementations (currently HCL) must satisfy.
package config
