// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"testing"
)

func TestProgressMonotonicity(t *testing.T) {
	s := NewProgressStore(context.Background())
	j := s.NewJob()
	j.TotalFiles = 10

	steps := []int{2, 2, 4, 2}
	prevCompleted, prevUploaded, prevPct := 0, 0, 0.0
	for _, n := range steps {
		s.UpdateJob(j.ID, func(job *Job) {
			job.UploadedFiles += n
			job.CompletedChapters++
		})
		cur, _ := s.GetJob(j.ID)
		if cur.CompletedChapters < prevCompleted {
			t.Fatalf("completed_chapters decreased")
		}
		if cur.UploadedFiles < prevUploaded {
			t.Fatalf("uploaded_files decreased")
		}
		pct := cur.Progress()
		if pct < prevPct {
			t.Fatalf("progress decreased: %v -> %v", prevPct, pct)
		}
		if pct < 0 || pct > 100 {
			t.Fatalf("progress out of range: %v", pct)
		}
		prevCompleted, prevUploaded, prevPct = cur.CompletedChapters, cur.UploadedFiles, pct
	}
}

func TestProgressZeroTotalFiles(t *testing.T) {
	j := &Job{}
	if pct := j.Progress(); pct != 0 {
		t.Errorf("Progress() with zero total = %v, want 0", pct)
	}
}
