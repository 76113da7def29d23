// Package constants centralizes defaults shared across the CLI, the API server and
// the scanning core.
//
// File permissions, browser timeouts and the storage sentinel live here so cmd/ and
// internal/ reference one value without introducing import cycles.
package constants
