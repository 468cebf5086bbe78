package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iabetor/stemgen/internal/credential"
	"github.com/iabetor/stemgen/internal/logger"
)

// DefaultUserAgents 是 Google 翻译 TTS 请求轮换使用的浏览器 UA。
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// GoogleConfig Google 翻译 TTS 配置。
type GoogleConfig struct {
	URL           string
	Client        string            // client 参数，默认 tw-ob
	Timeout       time.Duration     // 单次请求超时
	LanguageCodes map[string]string // 语言代码映射，如 en -> en-gb
}

// GoogleEngine 通过 Google 翻译的 translate_tts 接口合成 MP3。
// 每次请求从 UA 池取一个新的 User-Agent。
type GoogleEngine struct {
	url       string
	clientID  string
	timeout   time.Duration
	langCodes map[string]string
	agents    *credential.Pool[string]
	client    *http.Client
}

// NewGoogleEngine 创建 Google 翻译 TTS 引擎。
func NewGoogleEngine(cfg GoogleConfig, agents *credential.Pool[string]) *GoogleEngine {
	if cfg.Client == "" {
		cfg.Client = "tw-ob"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &GoogleEngine{
		url:       cfg.URL,
		clientID:  cfg.Client,
		timeout:   cfg.Timeout,
		langCodes: cfg.LanguageCodes,
		agents:    agents,
		client:    &http.Client{},
	}
}

// Name 返回引擎名称。
func (g *GoogleEngine) Name() string { return "google" }

// Synthesize 请求一段 MP3 音频。
func (g *GoogleEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	lang := req.Language
	if code, ok := g.langCodes[lang]; ok {
		lang = code
	}

	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", req.Text)
	params.Set("tl", lang)
	params.Set("client", g.clientID)

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, g.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, NewError(KindPermanent, g.Name(), err)
	}
	httpReq.Header.Set("User-Agent", g.agents.Next())

	logger.Debugf("[tts] google: 请求 %q (tl=%s)", req.Text, lang)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, transportError(reqCtx, g.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		e := NewError(KindForStatus(resp.StatusCode), g.Name(), fmt.Errorf("%q 返回异常状态", req.Text))
		e.Status = resp.StatusCode
		return nil, e
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(reqCtx, g.Name(), fmt.Errorf("读取响应失败: %w", err))
	}
	return data, nil
}
