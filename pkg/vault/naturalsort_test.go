// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"reflect"
	"testing"
)

func TestNaturalSortStability(t *testing.T) {
	in := []string{"page10.jpg", "page2.jpg", "page1.jpg", "page20.jpg"}
	want := []string{"page1.jpg", "page2.jpg", "page10.jpg", "page20.jpg"}
	naturalSort(in)
	if !reflect.DeepEqual(in, want) {
		t.Errorf("naturalSort() = %v, want %v", in, want)
	}
}

func TestNaturalSortMixedWidth(t *testing.T) {
	in := []string{"001.jpg", "010.jpg", "002.jpg", "100.jpg"}
	want := []string{"001.jpg", "002.jpg", "010.jpg", "100.jpg"}
	naturalSort(in)
	if !reflect.DeepEqual(in, want) {
		t.Errorf("naturalSort() = %v, want %v", in, want)
	}
}
