// Package testutil holds deterministic fakes shared by package tests.
package testutil
