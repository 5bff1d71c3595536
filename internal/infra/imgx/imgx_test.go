package imgx

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestCheckWaveform(t *testing.T) {
	const (
		w = 640
		h = 80
	)
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		src.Set(x, h/2, color.RGBA{0, 128, 255, 255})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}

	gw, gh, err := CheckWaveform(buf.Bytes())
	if err != nil {
		t.Fatalf("CheckWaveform 失败：%v", err)
	}
	if gw != w || gh != h {
		t.Fatalf("尺寸不符合预期：got=%dx%d want=%dx%d", gw, gh, w, h)
	}
}

func TestCheckWaveform_Empty(t *testing.T) {
	if _, _, err := CheckWaveform(nil); err == nil {
		t.Fatalf("期望空输入返回错误")
	}
}

func TestCheckWaveform_NotAnImage(t *testing.T) {
	if _, _, err := CheckWaveform([]byte("<html>Internal Server Error</html>")); err == nil {
		t.Fatalf("期望不可解码输入返回错误")
	}
}
