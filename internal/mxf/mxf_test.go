package mxf

import "testing"

func TestTimecodeFromFrames(t *testing.T) {
	tests := []struct {
		frames int64
		want   string
	}{
		{0, "00:00:00:00"},
		{24, "00:00:00:24"},
		{25, "00:00:01:00"},
		{25 * 60, "00:01:00:00"},
		{25 * 3600, "01:00:00:00"},
		{25*3600 + 25*61 + 7, "01:01:01:07"},
		{-5, "00:00:00:00"},
	}
	for _, tt := range tests {
		if got := TimecodeFromFrames(tt.frames).String(); got != tt.want {
			t.Errorf("TimecodeFromFrames(%d) = %s, want %s", tt.frames, got, tt.want)
		}
	}
}

func TestDefectKindString(t *testing.T) {
	if DefectPSEFailure.String() != "pse_failure" || DefectVTRError.String() != "vtr_error" || DefectDropout.String() != "dropout" {
		t.Fatal("unexpected defect kind labels")
	}
}
