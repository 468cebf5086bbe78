package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	sdkerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tctts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/stemgen/internal/credential"
	"github.com/iabetor/stemgen/internal/logger"
)

// TencentCredential 是一组腾讯云密钥。
type TencentCredential struct {
	SecretID  string
	SecretKey string
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	Credentials []TencentCredential
	Region      string
	Timeout     time.Duration
	VoiceTypes  map[string]int64 // 语言 -> 默认音色
	Languages   map[string]int64 // 语言 -> PrimaryLanguage（1 中文，2 英文）
}

// TencentEngine 使用腾讯云 TTS 合成 MP3。
// 每组密钥对应一个 SDK 客户端，请求间轮换。
type TencentEngine struct {
	clients *credential.Pool[*tctts.Client]
	cfg     TencentConfig
}

// NewTencentEngine 创建腾讯云 TTS 引擎。
func NewTencentEngine(cfg TencentConfig) (*TencentEngine, error) {
	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS 需要至少一组 SecretID 和 SecretKey")
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	clients := make([]*tctts.Client, 0, len(cfg.Credentials))
	for i, c := range cfg.Credentials {
		if c.SecretID == "" || c.SecretKey == "" {
			return nil, fmt.Errorf("[tts] 第 %d 组腾讯云密钥不完整", i+1)
		}
		cpf := profile.NewClientProfile()
		cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"
		cpf.HttpProfile.ReqTimeout = int(cfg.Timeout / time.Second)

		client, err := tctts.NewClient(common.NewCredential(c.SecretID, c.SecretKey), cfg.Region, cpf)
		if err != nil {
			return nil, fmt.Errorf("[tts] 创建腾讯云 TTS 客户端失败: %w", err)
		}
		clients = append(clients, client)
	}

	pool, err := credential.NewPool(clients)
	if err != nil {
		return nil, err
	}

	logger.Infof("[tts] 腾讯云 TTS 引擎已初始化 (密钥 %d 组, region=%s)", pool.Len(), cfg.Region)
	return &TencentEngine{clients: pool, cfg: cfg}, nil
}

// Name 返回引擎名称。
func (e *TencentEngine) Name() string { return "tencent" }

// Synthesize 合成一段 MP3。
func (e *TencentEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	voiceType := e.cfg.VoiceTypes[req.Language]
	if req.Voice != "" {
		v, err := strconv.ParseInt(req.Voice, 10, 64)
		if err != nil {
			return nil, NewError(KindPermanent, e.Name(), fmt.Errorf("音色 %q 不是数字", req.Voice))
		}
		voiceType = v
	}

	request := tctts.NewTextToVoiceRequest()
	request.Text = common.StringPtr(req.Text)
	request.SessionId = common.StringPtr(uuid.NewString())
	request.VoiceType = common.Int64Ptr(voiceType)
	request.Codec = common.StringPtr("mp3")
	request.Speed = common.Float64Ptr(tencentSpeed(req.Speed))
	request.Volume = common.Float64Ptr(5.0)
	if lang, ok := e.cfg.Languages[req.Language]; ok {
		request.PrimaryLanguage = common.Int64Ptr(lang)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	logger.Debugf("[tts] 腾讯云: 请求 %q，音色=%d", req.Text, voiceType)

	response, err := e.clients.Next().TextToVoiceWithContext(reqCtx, request)
	if err != nil {
		return nil, e.classify(reqCtx, err)
	}
	if response.Response == nil || response.Response.Audio == nil {
		return nil, NewError(KindInvalidResponse, e.Name(), fmt.Errorf("未返回音频数据"))
	}

	mp3Data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return nil, NewError(KindInvalidResponse, e.Name(), fmt.Errorf("Base64 解码失败: %w", err))
	}
	return mp3Data, nil
}

func (e *TencentEngine) classify(ctx context.Context, err error) *Error {
	var sdkErr *sdkerrors.TencentCloudSDKError
	if !errors.As(err, &sdkErr) {
		return transportError(ctx, e.Name(), err)
	}
	return NewError(tencentKindForCode(sdkErr.GetCode()), e.Name(), err)
}

// tencentKindForCode 按腾讯云错误码分类。
func tencentKindForCode(code string) Kind {
	switch {
	case strings.HasPrefix(code, "RequestLimitExceeded"), strings.HasPrefix(code, "LimitExceeded"):
		return KindRateLimited
	case strings.HasPrefix(code, "InternalError"), strings.HasPrefix(code, "ResourceUnavailable"):
		return KindUnavailable
	case strings.HasPrefix(code, "ClientError.NetworkError"):
		return KindTransport
	case strings.HasPrefix(code, "AuthFailure"),
		strings.HasPrefix(code, "InvalidParameter"),
		strings.HasPrefix(code, "UnauthorizedOperation"),
		strings.HasPrefix(code, "UnsupportedOperation"):
		return KindPermanent
	default:
		return KindInvalidResponse
	}
}

// tencentSpeed 把语速名称映射为腾讯云取值（0 为正常语速，-2~6）。
func tencentSpeed(speed string) float64 {
	switch strings.ToLower(speed) {
	case "", "normal":
		return 0
	case "slow":
		return -1
	case "fast":
		return 1
	}
	if v, err := strconv.ParseFloat(speed, 64); err == nil {
		return v
	}
	return 0
}
