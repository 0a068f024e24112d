// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	ximagedraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	thumbnailWidth   = 1280
	thumbnailHeight  = 720
	thumbnailQuality = 85
)

// ThumbnailGenerator produces a 16:9 preview JPEG from a source page. Work
// happens on the writer side: the source bytes are fetched through a
// RemoteClient, never through a sidecar daemon.
type ThumbnailGenerator struct {
	Client *RemoteClient
}

// Generate downloads sourceRelPath, center-crops it to 16:9, resizes to
// 1280x720, and returns a JPEG at quality 85. Failure here is always
// non-fatal to the caller: Ingest falls back to using the source page
// itself as the chapter's anchor image.
func (g *ThumbnailGenerator) Generate(ctx context.Context, sourceRelPath string) ([]byte, error) {
	raw, err := g.Client.DownloadBytes(ctx, sourceRelPath)
	if err != nil {
		return nil, fmt.Errorf("download source page: %w", err)
	}

	img, err := decodeImage(raw)
	if err != nil {
		return nil, fmt.Errorf("decode source page: %w", err)
	}

	opaque := compositeOverWhite(img)
	cropped := cropTo16x9(opaque)
	resized := resizeTo(cropped, thumbnailWidth, thumbnailHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeImage tries every decoder this system supports: JPEG, PNG, and
// WebP (decode only — the pipeline never emits WebP).
func decodeImage(raw []byte) (image.Image, error) {
	if img, err := jpeg.Decode(bytes.NewReader(raw)); err == nil {
		return img, nil
	}
	if img, err := png.Decode(bytes.NewReader(raw)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(raw)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("unrecognized image format")
}

// compositeOverWhite flattens any alpha channel onto a white background,
// since the thumbnail output is always JPEG (no alpha support).
func compositeOverWhite(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(out, b, img, b.Min, draw.Over)
	return out
}

// cropTo16x9 center-crops img to the 16:9 aspect ratio, trimming width
// from both sides if the source is too wide, or height from top and
// bottom if too tall.
func cropTo16x9(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	const targetRatio = float64(thumbnailWidth) / float64(thumbnailHeight)
	currentRatio := float64(w) / float64(h)

	var crop image.Rectangle
	switch {
	case currentRatio > targetRatio+0.01:
		newW := int(float64(h) * targetRatio)
		trim := (w - newW) / 2
		crop = image.Rect(b.Min.X+trim, b.Min.Y, b.Min.X+trim+newW, b.Max.Y)
	case currentRatio < targetRatio-0.01:
		newH := int(float64(w) / targetRatio)
		trim := (h - newH) / 2
		crop = image.Rect(b.Min.X, b.Min.Y+trim, b.Max.X, b.Min.Y+trim+newH)
	default:
		return img
	}

	out := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(out, out.Bounds(), img, crop.Min, draw.Src)
	return out
}

// resizeTo scales src to exactly w x h using a high-quality Catmull-Rom
// kernel.
func resizeTo(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	ximagedraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), ximagedraw.Over, nil)
	return dst
}
