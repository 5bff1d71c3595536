package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // 注册 JPEG 解码器（服务端格式可能演进）
	_ "image/png"  // 注册 PNG 解码器（波形图的默认格式）
)

// CheckWaveform 校验波形图字节是否是可解码的图片，返回宽高。
//
// 约束：
// - 只解码图片头（DecodeConfig），不展开整张位图
// - 空字节、不可解码、零尺寸都视为坏响应：落盘前拦下，
//   避免把服务端错误页存成 .png
func CheckWaveform(b []byte) (w, h int, err error) {
	if len(b) == 0 {
		return 0, 0, errors.New("波形图为空")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, fmt.Errorf("波形图不可解码: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("波形图尺寸无效（%s %dx%d）", format, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}
