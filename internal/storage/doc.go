// Package storage publishes run artifacts and fetches source media.
//
// Local keeps objects under a root directory and exposes them beneath a public
// base URL. Get accepts plain paths, file:// URLs, URLs under the public base
// (served straight from the root) and arbitrary http(s) URLs, which are
// downloaded into a temporary directory the caller removes via cleanup.
package storage
