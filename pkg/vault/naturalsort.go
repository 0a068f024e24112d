// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"sort"
	"strconv"
)

// naturalSort orders names the way a human expects: embedded runs of
// digits compare as integers rather than lexically, so "page2.jpg" sorts
// before "page10.jpg".
func naturalSort(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})
}

func naturalLess(a, b string) bool {
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		ac, bc := a[ai], b[bi]
		if isDigit(ac) && isDigit(bc) {
			as, ae := ai, ai
			for ae < len(a) && isDigit(a[ae]) {
				ae++
			}
			bs, be := bi, bi
			for be < len(b) && isDigit(b[be]) {
				be++
			}
			an, _ := strconv.Atoi(a[as:ae])
			bn, _ := strconv.Atoi(b[bs:be])
			if an != bn {
				return an < bn
			}
			// equal numeric value: fall back to digit-run length, then text
			if ae-as != be-bs {
				return ae-as < be-bs
			}
			ai, bi = ae, be
			continue
		}
		if ac != bc {
			return ac < bc
		}
		ai++
		bi++
	}
	return len(a)-ai < len(b)-bi
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
