package media_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zapdeskhq/zapdesk/internal/media"
)

func TestFitDimensions(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{name: "1080p scales to 720p", w: 1920, h: 1080, wantW: 1280, wantH: 720},
		{name: "small video untouched", w: 640, h: 480, wantW: 640, wantH: 480},
		{name: "portrait constrained by height", w: 1080, h: 1920, wantW: 404, wantH: 720},
		{name: "odd dimensions rounded even", w: 999, h: 701, wantW: 998, wantH: 700},
		{name: "unknown falls back to cap", w: 0, h: 0, wantW: 1280, wantH: 720},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotW, gotH := media.FitDimensions(tc.w, tc.h)
			assert.Equal(t, tc.wantW, gotW)
			assert.Equal(t, tc.wantH, gotH)
			assert.Zero(t, gotW%2)
			assert.Zero(t, gotH%2)
		})
	}
}

func TestTargetBitrate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 92160, media.TargetBitrate(1280, 720, 1.0))
	assert.Equal(t, 46080, media.TargetBitrate(1280, 720, 0.5))
	// Out-of-range quality falls back to full quality.
	assert.Equal(t, 92160, media.TargetBitrate(1280, 720, 0))
}
