// Package id provides unique identifier generation for jobs.
package id

import (
	"strings"

	"github.com/segmentio/ksuid"
)

const prefix = "job-"

// Generate creates a new job ID of the form job-<ksuid>. KSUIDs sort by
// creation time, so IDs generated later compare greater.
func Generate() string {
	return prefix + ksuid.New().String()
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	raw, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return false
	}
	_, err := ksuid.Parse(raw)
	return err == nil
}
