package audio

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// ProbeMP3 尝试解码 MP3 并返回时长，用于识别以 200 返回的错误页或截断数据。
func ProbeMP3(data []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("[audio] MP3 解码失败: %w", err)
	}

	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		return 0, fmt.Errorf("[audio] MP3 采样率无效: %d", sampleRate)
	}

	// go-mp3 始终输出立体声 16-bit PCM，每帧 4 字节
	const bytesPerFrame = 4
	length := decoder.Length()
	if length <= 0 {
		return 0, fmt.Errorf("[audio] MP3 不含音频帧")
	}
	frames := length / bytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(sampleRate), nil
}

// ValidateMP3 是 ProbeMP3 的校验形式，便于作为重试策略的响应校验函数。
func ValidateMP3(data []byte) error {
	_, err := ProbeMP3(data)
	return err
}
