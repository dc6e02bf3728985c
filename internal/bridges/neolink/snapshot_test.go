package neolink

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apocaliss92/scrypted-neolink/internal/device"
)

func TestDecodePreview(t *testing.T) {
	img := []byte{0xff, 0xd8, 0xff, 0xe0, 'j', 'p'}
	std := base64.StdEncoding.EncodeToString(img)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"plain base64", std, false},
		{"jpeg data uri", "data:image/jpeg;base64," + std, false},
		{"png data uri", "data:image/png;base64," + std, false},
		{"unpadded", base64.RawStdEncoding.EncodeToString(img), false},
		{"not base64", "%%%", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePreview(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, img, got)
		})
	}
}

func TestCamera_SnapshotQueriesMainsCamera(t *testing.T) {
	tc := newTestCamera(t, CameraOptions{SnapshotGrace: 5 * time.Millisecond})
	tc.bus.deliver(tc.cam.Topics().PreviewStatus, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString([]byte("jpeg")))

	img, ok, err := tc.cam.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("jpeg"), img)
	assert.Equal(t, []published{{"neolink/Garage/query/preview", "", false}}, tc.bus.publishes())
}

func TestCamera_SnapshotBatteryCameraDoesNotQuery(t *testing.T) {
	tc := newTestCamera(t, CameraOptions{
		Abilities:     []device.Ability{device.AbilityBattery},
		SnapshotGrace: time.Hour,
	})

	img, ok, err := tc.cam.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, img)
	assert.Empty(t, tc.bus.publishes())
}

func TestCamera_SnapshotInvalidPreview(t *testing.T) {
	tc := newTestCamera(t, CameraOptions{SnapshotGrace: time.Millisecond})
	tc.bus.deliver(tc.cam.Topics().PreviewStatus, "not an image")

	_, ok, err := tc.cam.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrDecode)
	assert.False(t, ok)
}

func TestCamera_SnapshotContextCancelled(t *testing.T) {
	tc := newTestCamera(t, CameraOptions{SnapshotGrace: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := tc.cam.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCamera_EmptyPreviewKeepsLastImage(t *testing.T) {
	tc := newTestCamera(t, CameraOptions{Abilities: []device.Ability{device.AbilityBattery}})
	topic := tc.cam.Topics().PreviewStatus

	tc.bus.deliver(topic, base64.StdEncoding.EncodeToString([]byte("jpeg")))
	tc.bus.deliver(topic, "")
	tc.bus.deliver(topic, "  ")

	img, ok, err := tc.cam.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("jpeg"), img)
	assert.True(t, tc.cam.State().HasPreview)
}
