// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import "testing"

func TestValidateRelPath(t *testing.T) {
	cases := map[string]bool{
		"a/b/c.jpg":  true,
		"":           false,
		"../x":       false,
		"/abs/path":  false,
		`a\b`:        false,
		"one-piece":  true,
	}
	for in, want := range cases {
		got := validateRelPath(in) == nil
		if got != want {
			t.Errorf("validateRelPath(%q) valid = %v, want %v", in, got, want)
		}
	}
}

func TestValidateImagePath(t *testing.T) {
	cases := map[string]bool{
		"a.jpg":   true,
		"a.JPG":   true,
		"a.webp":  true,
		"a.gif":   false,
		"ab":      false,
		"../a.jpg": false,
	}
	for in, want := range cases {
		got := validateImagePath(in) == nil
		if got != want {
			t.Errorf("validateImagePath(%q) valid = %v, want %v", in, got, want)
		}
	}
}

func TestClassifyQuota(t *testing.T) {
	positives := []string{
		"Error: Quota exceeded for this account",
		"403: Forbidden",
		"rate limit hit, retry later",
		"Too Many Requests",
	}
	for _, s := range positives {
		if !classifyQuota(s) {
			t.Errorf("classifyQuota(%q) = false, want true", s)
		}
	}
	if classifyQuota("connection reset by peer") {
		t.Errorf("classifyQuota(transient) = true, want false")
	}
}
