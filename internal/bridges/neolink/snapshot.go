package neolink

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"time"

	"github.com/apocaliss92/scrypted-neolink/internal/device"
)

var dataURIPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)

// Snapshot returns the latest preview image. Mains-powered cameras are
// asked for a fresh preview first; battery cameras only refresh on the
// poll so they are not woken up.
//
// ok is false when neolink has not published a preview yet.
func (c *Camera) Snapshot(ctx context.Context) (img []byte, ok bool, err error) {
	if !c.abilities.Has(device.AbilityBattery) {
		if err := c.bus.Publish(ctx, c.topics.PreviewQuery, "", false); err != nil {
			c.logger.Warn("preview query failed", "camera", c.name, "error", err)
		} else {
			timer := time.NewTimer(c.snapshotGrace)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, false, ctx.Err()
			case <-timer.C:
			}
		}
	}

	c.mu.Lock()
	preview := c.preview
	c.mu.Unlock()

	if preview == "" {
		return nil, false, nil
	}
	img, err = DecodePreview(preview)
	if err != nil {
		c.metrics.decodeError(c.name, c.topics.PreviewStatus)
		return nil, false, err
	}
	return img, true, nil
}

// DecodePreview decodes a neolink preview payload, with or without a
// data URI prefix.
func DecodePreview(payload string) ([]byte, error) {
	raw := dataURIPrefix.ReplaceAllString(payload, "")
	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		var rawErr error
		if img, rawErr = base64.RawStdEncoding.DecodeString(raw); rawErr != nil {
			return nil, fmt.Errorf("%w: preview: %w", ErrDecode, err)
		}
	}
	return img, nil
}
