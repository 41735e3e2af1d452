package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the webp decoder used by imaging.Decode

	"mangadl/internal/model"
)

const (
	maxCoverBytes        = 16 << 20
	thumbnailJPEGQuality = 85
)

// FetchCover downloads a cover image and returns it scaled down to fit the
// thumbnail box, encoded as JPEG.
func (c *Client) FetchCover(ctx context.Context, coverURL string) ([]byte, error) {
	resp, err := c.get(ctx, coverURL, "image/*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read cover: %v", ErrTransport, err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: cover image: %v", ErrDecode, err)
	}

	if c.thumbWidth > 0 && c.thumbHeight > 0 {
		img = imaging.Fit(img, c.thumbWidth, c.thumbHeight, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// HasRemoteCover reports whether a result carries a cover worth fetching.
func HasRemoteCover(result model.SearchResult) bool {
	return strings.HasPrefix(result.CoverURL, "http://") || strings.HasPrefix(result.CoverURL, "https://")
}
