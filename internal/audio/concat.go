package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Concat 按顺序拼接多段音频。
// 全部为 WAV 时合并 PCM 并重写文件头，要求各段格式一致；否则直接拼接字节（MP3 帧可直接相连）。
func Concat(parts [][]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("[audio] 没有可拼接的音频")
	}

	wavCount := 0
	for _, p := range parts {
		if IsWAV(p) {
			wavCount++
		}
	}

	switch wavCount {
	case 0:
		return bytes.Join(parts, nil), nil
	case len(parts):
		return concatWAV(parts)
	default:
		return nil, fmt.Errorf("[audio] 不能混合拼接 WAV 与其他格式")
	}
}

type wavFormat struct {
	channels   uint16
	sampleRate uint32
	bits       uint16
}

func concatWAV(parts [][]byte) ([]byte, error) {
	var (
		pcm   bytes.Buffer
		first wavFormat
	)
	for i, p := range parts {
		format, data, err := parseWAV(p)
		if err != nil {
			return nil, fmt.Errorf("[audio] 第 %d 段: %w", i+1, err)
		}
		if i == 0 {
			first = format
		} else if format != first {
			return nil, fmt.Errorf("[audio] 第 %d 段格式不一致: %+v vs %+v", i+1, format, first)
		}
		pcm.Write(data)
	}
	if first.bits != 16 {
		return nil, fmt.Errorf("[audio] 仅支持 16-bit PCM，实际 %d-bit", first.bits)
	}
	return EncodeWAV(pcm.Bytes(), int(first.sampleRate), int(first.channels))
}

// parseWAV 解析 RIFF 块，返回格式与 data 块内容。
func parseWAV(b []byte) (wavFormat, []byte, error) {
	var format wavFormat
	if !IsWAV(b) {
		return format, nil, fmt.Errorf("不是 WAV 数据")
	}

	haveFmt := false
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(b) {
			end = len(b)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return format, nil, fmt.Errorf("fmt 块过短")
			}
			format.channels = binary.LittleEndian.Uint16(b[body+2 : body+4])
			format.sampleRate = binary.LittleEndian.Uint32(b[body+4 : body+8])
			format.bits = binary.LittleEndian.Uint16(b[body+14 : body+16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return format, nil, fmt.Errorf("data 块出现在 fmt 块之前")
			}
			return format, b[body:end], nil
		}
		// 块按偶数字节对齐
		off = end + size%2
	}
	return format, nil, fmt.Errorf("缺少 data 块")
}
