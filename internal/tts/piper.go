package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/iabetor/stemgen/internal/audio"
	"github.com/iabetor/stemgen/internal/logger"
)

// piperSampleRate 是 piper 输出的固定采样率。
const piperSampleRate = 22050

// PiperEngine 使用本地 piper CLI 合成，适合离线重建 stem。
// 输出 WAV，需要后处理转成 MP3。
type PiperEngine struct {
	bin     string
	models  map[string]string // 语言 -> 模型路径
	timeout time.Duration     // 单次合成的超时
}

// NewPiperEngine 创建 Piper 引擎。bin 为空时使用 PATH 中的 piper，timeout 不大于 0 时为 30 秒。
func NewPiperEngine(bin string, models map[string]string, timeout time.Duration) *PiperEngine {
	if bin == "" {
		bin = "piper"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PiperEngine{bin: bin, models: models, timeout: timeout}
}

// Name 返回引擎名称。
func (p *PiperEngine) Name() string { return "piper" }

// Synthesize 通过 stdin 传入文本，读取 signed 16-bit LE 单声道 PCM。
func (p *PiperEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	model := p.models[req.Language]
	if model == "" {
		return nil, NewError(KindPermanent, p.Name(), fmt.Errorf("语言 %s 未配置模型", req.Language))
	}

	logger.Debugf("[tts] piper: 正在合成 %q，模型=%s", req.Text, model)

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.bin, "--model", model, "--output-raw")
	cmd.Stdin = strings.NewReader(req.Text)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.Canceled {
			return nil, NewError(KindCanceled, p.Name(), err)
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, NewError(KindTransport, p.Name(), fmt.Errorf("piper 超过 %s 未完成: %w", p.timeout, err))
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			logger.Warnf("[tts] piper stderr: %s", s)
		}
		return nil, NewError(KindPermanent, p.Name(), fmt.Errorf("piper 执行失败: %w", err))
	}

	if stdout.Len() == 0 {
		return nil, NewError(KindInvalidResponse, p.Name(), fmt.Errorf("未收到音频数据"))
	}

	wav, err := audio.EncodeWAV(stdout.Bytes(), piperSampleRate, 1)
	if err != nil {
		return nil, NewError(KindInvalidResponse, p.Name(), err)
	}
	return wav, nil
}
