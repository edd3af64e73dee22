package chunking

import (
	"os"

	"tapearc/internal/mxf"
)

// browseAudio converts per-track PCM audio to the 16-bit interleaved stereo
// the browse encoder accepts. Two tracks stay discrete on left/right; a
// single track goes to the left channel with the right silenced.
func browseAudio(tracks [][]int16) []int16 {
	if len(tracks) == 0 {
		return nil
	}
	samples := len(tracks[0])
	out := make([]int16, samples*2)
	if len(tracks) >= 2 {
		right := tracks[1]
		for i := 0; i < samples; i++ {
			out[i*2] = tracks[0][i]
			if i < len(right) {
				out[i*2+1] = right[i]
			}
		}
		return out
	}
	for i := 0; i < samples; i++ {
		out[i*2] = tracks[0][i]
	}
	return out
}

// browseVideo converts a frame's video plane to the planar 4:2:0 layout the
// browse encoder accepts. The compressed (D10) path's decoder already
// yields planar output, so only the uncompressed UYVY layout is converted.
func browseVideo(cp *mxf.ContentPackage) []byte {
	if cp.VideoLayout != mxf.LayoutUYVY {
		return cp.Video
	}
	return uyvyToPlanar420(cp.Video, cp.Width, cp.Height)
}

// uyvyToPlanar420 repacks interleaved UYVY 4:2:2 into planar 4:2:0,
// averaging each vertical chroma pair.
func uyvyToPlanar420(src []byte, width, height int) []byte {
	if width <= 0 || height <= 0 || len(src) < width*height*2 {
		return src
	}
	halfW := width / 2
	halfH := height / 2
	out := make([]byte, width*height+2*halfW*halfH)
	yPlane := out[:width*height]
	uPlane := out[width*height : width*height+halfW*halfH]
	vPlane := out[width*height+halfW*halfH:]

	rowBytes := width * 2
	for y := 0; y < height; y++ {
		row := src[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < width; x++ {
			yPlane[y*width+x] = row[x*2+1]
		}
	}
	for cy := 0; cy < halfH; cy++ {
		top := src[(cy*2)*rowBytes : (cy*2+1)*rowBytes]
		bottom := src[(cy*2+1)*rowBytes : (cy*2+2)*rowBytes]
		for cx := 0; cx < halfW; cx++ {
			u := (int(top[cx*4]) + int(bottom[cx*4])) / 2
			v := (int(top[cx*4+2]) + int(bottom[cx*4+2])) / 2
			uPlane[cy*halfW+cx] = byte(u)
			vPlane[cy*halfW+cx] = byte(v)
		}
	}
	return out
}

func statSize(path string) (bool, int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, info.Size(), nil
}
