package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Request 是一次合成请求。
type Request struct {
	Text     string
	Language string
	Voice    string // 为空时使用引擎按语言配置的默认音色
	Speed    string // normal / slow / fast，或引擎可识别的数值
}

// Engine 定义远程语音合成后端接口。
type Engine interface {
	// Synthesize 把文本合成为完整的音频文件字节（MP3 或 WAV）。
	// 失败时返回 *Error，便于重试策略区分错误类型。
	Synthesize(ctx context.Context, req Request) ([]byte, error)
	// Name 返回引擎名称，用于日志。
	Name() string
}

// Kind 是合成失败的分类。
type Kind int

const (
	// KindTransport 网络错误或请求超时。
	KindTransport Kind = iota
	// KindInvalidResponse 状态码异常、响应结构异常或音频数据过小。
	KindInvalidResponse
	// KindRateLimited 服务端限流或配额耗尽。
	KindRateLimited
	// KindUnavailable 服务暂时不可用。
	KindUnavailable
	// KindPermanent 重试无意义的错误，如鉴权失败、参数错误。
	KindPermanent
	// KindCanceled 调用方取消了整个运行。
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindInvalidResponse:
		return "invalid_response"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindPermanent:
		return "permanent"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retryable 报告该类错误是否值得重试。
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindInvalidResponse, KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}

// Backpressure 报告是否为服务端背压信号，此类错误需要更长的退避。
func (k Kind) Backpressure() bool {
	return k == KindRateLimited || k == KindUnavailable
}

// Error 是分类后的合成错误。
type Error struct {
	Kind     Kind
	Provider string
	Status   int // HTTP 状态码，未知时为 0
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("[tts] %s: %s (HTTP %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("[tts] %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError 创建分类错误。
func NewError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf 返回 err 的分类。未分类的错误按网络错误处理，上下文取消单独归类。
func KindOf(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindTransport
}

// KindForStatus 把非 200 状态码映射为错误分类。
// 429 为限流，502/503 为服务不可用，504 为超时，其余视为无效响应。
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindUnavailable
	case http.StatusGatewayTimeout:
		return KindTransport
	default:
		return KindInvalidResponse
	}
}

// transportError 把网络层错误归类；请求自身超时属于网络错误，调用方取消单独归类。
func transportError(ctx context.Context, provider string, err error) *Error {
	if ctx.Err() == context.Canceled {
		return NewError(KindCanceled, provider, err)
	}
	return NewError(KindTransport, provider, err)
}
