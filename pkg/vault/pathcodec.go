// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"regexp"
	"strconv"
	"strings"
)

// groupPrefixPattern matches a numbered group prefix, e.g. "@12/rest".
var groupPrefixPattern = regexp.MustCompile(`^@(\d+)/`)

// GroupOf returns the storage group a stored path belongs to. Paths with
// no recognized prefix belong to group 1. A bare "@" prefix with no digit
// is the legacy single-character convention for group 2, honored on read
// only.
func GroupOf(path string) int {
	if m := groupPrefixPattern.FindStringSubmatch(path); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 {
			return n
		}
	}
	if strings.HasPrefix(path, "@") {
		return 2
	}
	return 1
}

// Clean strips a path's group prefix, returning the relative path that was
// written. It performs a string-prefix strip, never a character-set strip:
// Clean("@@abc") is "@abc", not "abc".
func Clean(path string) string {
	if m := groupPrefixPattern.FindStringSubmatch(path); m != nil {
		return path[len(m[0]):]
	}
	if strings.HasPrefix(path, "@") {
		return path[1:]
	}
	return path
}

// Mark encodes relative as a path belonging to group n: unchanged for
// n == 1, prefixed with "@n/" otherwise. Calling Mark on an already-marked
// path for the same group is idempotent.
func Mark(relative string, n int) string {
	if n <= 1 {
		return relative
	}
	if GroupOf(relative) == n && groupPrefixPattern.MatchString(relative) {
		return relative
	}
	return "@" + strconv.Itoa(n) + "/" + relative
}
