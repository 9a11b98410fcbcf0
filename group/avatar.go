// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package group

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/ids"
)

const (
	maxAvatarBytes = 30 * 1024
	maxAvatarSide  = 256
)

// ErrAvatarTooLarge is returned when an avatar can't be brought under
// maxAvatarBytes even at the lowest attempted quality.
var ErrAvatarTooLarge = errors.New("group: avatar could not be compressed under the size cap")

// SetAvatar resizes img to at most 256x256 and JPEG-encodes it,
// stepping quality down until the result fits under 30 KB, then emits
// it as the group's Avatar metadata register.
func (s *Service) SetAvatar(group ids.GroupID, img image.Image) (ids.OpID, error) {
	resized := resizeToFit(img, maxAvatarSide)

	var encoded []byte
	for _, quality := range []int{85, 70, 55, 40, 25} {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
			return ids.OpID{}, errors.Wrap(err, "group: encode avatar")
		}
		if buf.Len() <= maxAvatarBytes {
			encoded = buf.Bytes()
			break
		}
		encoded = buf.Bytes() // keep the smallest attempt seen so far
	}
	if len(encoded) > maxAvatarBytes {
		return ids.OpID{}, ErrAvatarTooLarge
	}
	return s.SetMetadata(group, codec.MetaAvatar, encoded)
}

// resizeToFit scales img down (never up) so its longer side is at
// most maxSide, preserving aspect ratio.
func resizeToFit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	var newW, newH int
	if w >= h {
		newW = maxSide
		newH = h * maxSide / w
	} else {
		newH = maxSide
		newW = w * maxSide / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
