package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/iabetor/stemgen/internal/audio"
	"github.com/iabetor/stemgen/internal/credential"
	"github.com/iabetor/stemgen/internal/logger"
)

const (
	defaultGeminiSampleRate = 24000
	defaultGeminiBase       = "https://generativelanguage.googleapis.com"
)

// GeminiConfig 生成式 TTS 配置。
type GeminiConfig struct {
	Endpoint string // 如 https://generativelanguage.googleapis.com/v1beta
	Model    string
	Timeout  time.Duration
	Voices   map[string]string // 语言 -> 默认预置音色
	Contexts map[string]string // 语言 -> 提示词中的整句示例
}

// GeminiEngine 通过 genai SDK 调用 generateContent 输出音频。
// 每个 API Key 对应一个客户端，请求间轮换。
// 接口返回 24kHz 单声道 16-bit PCM，这里封装为 WAV 返回。
type GeminiEngine struct {
	cfg     GeminiConfig
	clients *credential.Pool[*genai.Client]
}

// NewGeminiEngine 创建生成式 TTS 引擎。
func NewGeminiEngine(cfg GeminiConfig, keys []string) (*GeminiEngine, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("[tts] Gemini 需要至少一个 API Key")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	base, version := splitGeminiEndpoint(cfg.Endpoint)
	httpClient := &http.Client{}

	clients := make([]*genai.Client, 0, len(keys))
	for i, key := range keys {
		if key == "" {
			return nil, fmt.Errorf("[tts] 第 %d 个 Gemini API Key 为空", i+1)
		}
		cc := &genai.ClientConfig{
			APIKey:     key,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
			HTTPOptions: genai.HTTPOptions{
				BaseURL: base,
			},
		}
		if version != "" {
			cc.HTTPOptions.APIVersion = version
		}
		client, err := genai.NewClient(context.Background(), cc)
		if err != nil {
			return nil, fmt.Errorf("[tts] 创建 Gemini 客户端失败: %w", err)
		}
		clients = append(clients, client)
	}

	pool, err := credential.NewPool(clients)
	if err != nil {
		return nil, err
	}

	logger.Infof("[tts] Gemini 引擎已初始化 (model=%s, API Key %d 个)", cfg.Model, pool.Len())
	return &GeminiEngine{cfg: cfg, clients: pool}, nil
}

// Name 返回引擎名称。
func (g *GeminiEngine) Name() string { return "gemini" }

var (
	rateParam        = regexp.MustCompile(`rate=(\d+)`)
	apiVersionSuffix = regexp.MustCompile(`^v[0-9]+(?:(?:alpha|beta)[0-9]*)?$`)
)

// splitGeminiEndpoint 把 ".../v1beta" 拆成 BaseURL 和 APIVersion。
func splitGeminiEndpoint(endpoint string) (string, string) {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if base == "" {
		return defaultGeminiBase, ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base, ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return base, ""
	}
	parts := strings.Split(path, "/")
	version := parts[len(parts)-1]
	if !apiVersionSuffix.MatchString(version) {
		return base, ""
	}
	if rest := parts[:len(parts)-1]; len(rest) > 0 {
		u.Path = "/" + strings.Join(rest, "/")
	} else {
		u.Path = ""
	}
	return strings.TrimRight(u.String(), "/"), version
}

// Synthesize 合成一段语音，返回 WAV 字节。
func (g *GeminiEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = g.cfg.Voices[req.Language]
	}
	speed := req.Speed
	if speed == "" {
		speed = "normal"
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	contents := []*genai.Content{
		genai.NewContentFromText(g.prompt(req.Text, req.Language, speed), genai.RoleUser),
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	logger.Debugf("[tts] gemini: 请求 %q (voice=%s, speed=%s)", req.Text, voice, speed)

	resp, err := g.clients.Next().Models.GenerateContent(reqCtx, g.cfg.Model, contents, config)
	if err != nil {
		return nil, g.classify(reqCtx, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, NewError(KindInvalidResponse, g.Name(), fmt.Errorf("响应缺少 candidates/content/parts"))
	}
	var inline *genai.Blob
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			inline = part.InlineData
			break
		}
	}
	if inline == nil {
		return nil, NewError(KindInvalidResponse, g.Name(), fmt.Errorf("响应中没有音频数据"))
	}

	rate := defaultGeminiSampleRate
	if m := rateParam.FindStringSubmatch(inline.MIMEType); m != nil {
		if r, err := strconv.Atoi(m[1]); err == nil && r > 0 {
			rate = r
		}
	}

	wav, err := audio.EncodeWAV(inline.Data, rate, 1)
	if err != nil {
		return nil, NewError(KindInvalidResponse, g.Name(), err)
	}
	return wav, nil
}

// classify 把 SDK 错误映射为错误类别：接口错误按状态码，网络错误归为传输错误，
// 其余（如响应无法解析）视为无效响应。
func (g *GeminiEngine) classify(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return g.apiError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return g.apiError(*apiErrPtr, err)
	}

	var urlErr *url.Error
	if ctx.Err() != nil || errors.As(err, &urlErr) {
		return transportError(ctx, g.Name(), err)
	}
	return NewError(KindInvalidResponse, g.Name(), err)
}

func (g *GeminiEngine) apiError(apiErr genai.APIError, err error) error {
	msg := strings.TrimSpace(apiErr.Message)
	if apiErr.Status != "" {
		msg = apiErr.Status + ": " + msg
	}
	e := NewError(geminiKindForStatus(apiErr.Code), g.Name(), fmt.Errorf("%s: %w", msg, err))
	e.Status = apiErr.Code
	return e
}

// prompt 构造带上下文的提示词，让模型只朗读目标片段。
func (g *GeminiEngine) prompt(text, language, speed string) string {
	example, ok := g.cfg.Contexts[language]
	if !ok {
		example = g.cfg.Contexts["en"]
	}
	return fmt.Sprintf(`
<tts_instruction>
  <context>
    This audio is part of a queue announcement system.
    %s
    Speak with clear, professional tone.
  </context>
  <speed>%s</speed>
  <speak_this_part_only>%s</speak_this_part_only>
</tts_instruction>
`, example, speed, text)
}

// geminiKindForStatus 区分可重试的背压信号与参数、鉴权类错误。
func geminiKindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusGatewayTimeout:
		return KindTransport
	case status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindPermanent
	default:
		return KindInvalidResponse
	}
}

// DefaultGeminiContexts 返回各语言提示词中的整句示例。
func DefaultGeminiContexts() map[string]string {
	return map[string]string{
		"en": "The full announcement sounds like: 'Number C four to counter two.'",
		"th": "The full announcement sounds like: 'หมายเลข ซี สี่ เชิญที่เคาน์เตอร์ สอง.'",
	}
}
