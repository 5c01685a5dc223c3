// Package deps checks for the external executables and model files the
// pipeline shells out to or loads at runtime.
package deps
