package tts

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/stemgen/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 合成 MP3，按语言选择音色。
type EdgeEngine struct {
	voices  map[string]string
	timeout time.Duration
}

// NewEdgeEngine 创建 Edge TTS 引擎。voices 为语言到音色的映射，如 en -> en-GB-SoniaNeural。
func NewEdgeEngine(voices map[string]string, timeout time.Duration) *EdgeEngine {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EdgeEngine{voices: voices, timeout: timeout}
}

// Name 返回引擎名称。
func (e *EdgeEngine) Name() string { return "edge" }

// Synthesize 通过 Stream() 收集所有音频块，返回完整 MP3。
func (e *EdgeEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = e.voices[req.Language]
	}
	if voice == "" {
		return nil, NewError(KindPermanent, e.Name(), fmt.Errorf("语言 %s 未配置音色", req.Language))
	}

	logger.Debugf("[tts] edge-tts: 请求 %q，语音=%s", req.Text, voice)

	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(voice))
	if err != nil {
		return nil, NewError(KindPermanent, e.Name(), fmt.Errorf("创建实例失败: %w", err))
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, NewError(KindTransport, e.Name(), fmt.Errorf("开始流式合成失败: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var mp3Buf bytes.Buffer
	for {
		select {
		case <-reqCtx.Done():
			// 排空 channel，避免库内 goroutine 阻塞
			go func() {
				for range ch {
				}
			}()
			return nil, transportError(reqCtx, e.Name(), reqCtx.Err())
		case msg, ok := <-ch:
			if !ok {
				if mp3Buf.Len() == 0 {
					return nil, NewError(KindInvalidResponse, e.Name(), fmt.Errorf("未收到音频数据"))
				}
				return mp3Buf.Bytes(), nil
			}
			// type=="audio" 的条目包含音频数据
			if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
				if data, ok := msg["data"].([]byte); ok {
					mp3Buf.Write(data)
				}
			}
		}
	}
}
