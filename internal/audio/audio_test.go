package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := make([]byte, 480)
	wav, err := EncodeWAV(pcm, 24000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV 失败: %v", err)
	}
	if len(wav) != wavHeaderSize+len(pcm) {
		t.Fatalf("期望长度 %d，得到 %d", wavHeaderSize+len(pcm), len(wav))
	}
	if !IsWAV(wav) {
		t.Fatal("期望输出带 RIFF/WAVE 头")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("RIFF 大小: got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Errorf("采样率: got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 48000 {
		t.Errorf("字节率: got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data 大小: got %d", got)
	}
}

func TestEncodeWAV_OddLength(t *testing.T) {
	wav, err := EncodeWAV(make([]byte, 11), 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV 失败: %v", err)
	}
	if len(wav) != wavHeaderSize+10 {
		t.Errorf("期望截掉不完整样本，得到长度 %d", len(wav))
	}
}

func TestEncodeWAV_InvalidParams(t *testing.T) {
	if _, err := EncodeWAV([]byte{0, 0}, 0, 1); err == nil {
		t.Error("采样率为 0 时应返回错误")
	}
	if _, err := EncodeWAV([]byte{0, 0}, 16000, 0); err == nil {
		t.Error("声道数为 0 时应返回错误")
	}
}

func TestIsWAV(t *testing.T) {
	if IsWAV([]byte("ID3\x03\x00")) {
		t.Error("MP3 数据不应识别为 WAV")
	}
	if IsWAV(nil) {
		t.Error("空数据不应识别为 WAV")
	}
}

func TestValidateMP3_Garbage(t *testing.T) {
	if err := ValidateMP3([]byte("<html>error</html>")); err == nil {
		t.Error("HTML 错误页不应通过 MP3 校验")
	}
	if err := ValidateMP3(nil); err == nil {
		t.Error("空数据不应通过 MP3 校验")
	}
}

func TestConcat_MP3Bytes(t *testing.T) {
	out, err := Concat([][]byte{[]byte("abc"), []byte("def")})
	if err != nil {
		t.Fatalf("Concat 失败: %v", err)
	}
	if string(out) != "abcdef" {
		t.Errorf("期望直接拼接，得到 %q", out)
	}
}

func TestConcat_WAVMergesPCM(t *testing.T) {
	a, _ := EncodeWAV([]byte{1, 0, 2, 0}, 24000, 1)
	b, _ := EncodeWAV([]byte{3, 0}, 24000, 1)

	out, err := Concat([][]byte{a, b})
	if err != nil {
		t.Fatalf("Concat 失败: %v", err)
	}
	if len(out) != wavHeaderSize+6 {
		t.Fatalf("期望长度 %d，得到 %d", wavHeaderSize+6, len(out))
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != 6 {
		t.Errorf("data 大小: got %d", got)
	}
	if got := out[wavHeaderSize:]; got[0] != 1 || got[2] != 2 || got[4] != 3 {
		t.Errorf("PCM 顺序错误: %v", got)
	}
}

func TestConcat_Rejects(t *testing.T) {
	a, _ := EncodeWAV([]byte{1, 0}, 24000, 1)
	b, _ := EncodeWAV([]byte{1, 0}, 22050, 1)

	if _, err := Concat([][]byte{a, b}); err == nil {
		t.Error("采样率不同应返回错误")
	}
	if _, err := Concat([][]byte{a, []byte("ID3")}); err == nil {
		t.Error("混合格式应返回错误")
	}
	if _, err := Concat(nil); err == nil {
		t.Error("空输入应返回错误")
	}
}
