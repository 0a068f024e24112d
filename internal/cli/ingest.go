// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newIngestCmd(ro *RootOpts) *cobra.Command {
	var (
		uploader      string
		sourceID      string
		defaultType   string
		defaultStatus string
		chapterRegex  string
	)

	cmd := &cobra.Command{
		Use:   "ingest [ARCHIVE.zip]",
		Short: "Upload a manga/chapter archive to a running mangavault server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if uploader == "" || sourceID == "" {
				return fmt.Errorf("--uploader and --source-id are required")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat archive: %w", err)
			}
			fmt.Printf("uploading %s (%s)\n", args[0], humanize.Bytes(uint64(info.Size())))

			var reader io.Reader = f
			if term.IsTerminal(int(os.Stdout.Fd())) {
				bar := pb.Full.Start64(info.Size())
				defer bar.Finish()
				reader = bar.NewProxyReader(f)
			}

			body, contentType, err := buildIngestBody(reader, args[0], uploader, sourceID, defaultType, defaultStatus, chapterRegex)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 5 * time.Minute}
			resp, err := client.Post(ro.Server+"/ingest", contentType, body)
			if err != nil {
				return fmt.Errorf("post archive: %w", err)
			}
			defer resp.Body.Close()

			var out map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("server returned %s: %v", resp.Status, out)
			}

			fmt.Printf("ingest job started: %v\n", out["id"])
			fmt.Printf("poll status: %s/ingest/%v\n", ro.Server, out["id"])
			return nil
		},
	}

	cmd.Flags().StringVar(&uploader, "uploader", "", "Uploader identity recorded against this job (required)")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "Storage-source identifier new chapters are filed under (required)")
	cmd.Flags().StringVar(&defaultType, "default-type", "manga", "Type assigned when a manga folder has no type.txt/marker file")
	cmd.Flags().StringVar(&defaultStatus, "default-status", "ongoing", "Status assigned when a manga folder has no status.txt")
	cmd.Flags().StringVar(&chapterRegex, "chapter-regex", "", "Override the chapter folder name pattern (default: chapter[_ ]?<number>)")

	return cmd
}

func buildIngestBody(f io.Reader, path, uploader, sourceID, defaultType, defaultStatus, chapterRegex string) (io.Reader, string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		defer mw.Close()

		part, err := mw.CreateFormFile("archive", path)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}

		mw.WriteField("uploader", uploader)
		mw.WriteField("source_id", sourceID)
		if defaultType != "" {
			mw.WriteField("default_type", defaultType)
		}
		if defaultStatus != "" {
			mw.WriteField("default_status", defaultStatus)
		}
		if chapterRegex != "" {
			mw.WriteField("chapter_regex", chapterRegex)
		}
	}()

	return pr, mw.FormDataContentType(), nil
}
