// Package hclcfg implements the config.Loader and config.Converter
// interfaces for HCL pipeline files.
package hclcfg
