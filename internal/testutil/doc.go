// Package testutil provides shared test helpers: a controllable clock,
// assertion shorthands, and a fluent HTTP request builder for handler tests.
//
// It is internal because its API makes no stability promises; tests inside
// this module are its only consumers.
package testutil
