package main

import (
	"fmt"

	"github.com/iabetor/stemgen/internal/audio"
	"github.com/iabetor/stemgen/internal/config"
	"github.com/iabetor/stemgen/internal/credential"
	"github.com/iabetor/stemgen/internal/engine"
	"github.com/iabetor/stemgen/internal/postprocess"
	"github.com/iabetor/stemgen/internal/retry"
	"github.com/iabetor/stemgen/internal/tts"
)

// buildSynthesizer 按配置创建合成引擎。
func buildSynthesizer(cfg *config.Config) (tts.Engine, error) {
	timeout := config.Seconds(cfg.Engine.RequestTimeout)

	switch cfg.Provider {
	case config.ProviderGoogle:
		agents := cfg.Google.UserAgents
		if len(agents) == 0 {
			agents = tts.DefaultUserAgents
		}
		pool, err := credential.NewPool(agents)
		if err != nil {
			return nil, fmt.Errorf("%w: User-Agent 池: %v", config.ErrConfiguration, err)
		}
		return tts.NewGoogleEngine(tts.GoogleConfig{
			URL:           cfg.Google.URL,
			Client:        cfg.Google.Client,
			Timeout:       timeout,
			LanguageCodes: cfg.Google.LanguageCodes,
		}, pool), nil

	case config.ProviderGemini:
		e, err := tts.NewGeminiEngine(tts.GeminiConfig{
			Endpoint: cfg.Gemini.Endpoint,
			Model:    cfg.Gemini.Model,
			Timeout:  timeout,
			Voices:   cfg.Gemini.Voices,
			Contexts: tts.DefaultGeminiContexts(),
		}, cfg.Gemini.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		return e, nil

	case config.ProviderEdge:
		return tts.NewEdgeEngine(cfg.Edge.Voices, timeout), nil

	case config.ProviderTencent:
		creds := make([]tts.TencentCredential, len(cfg.Tencent.Credentials))
		for i, c := range cfg.Tencent.Credentials {
			creds[i] = tts.TencentCredential{SecretID: c.SecretID, SecretKey: c.SecretKey}
		}
		e, err := tts.NewTencentEngine(tts.TencentConfig{
			Credentials: creds,
			Region:      cfg.Tencent.Region,
			Timeout:     timeout,
			VoiceTypes:  cfg.Tencent.VoiceTypes,
			Languages:   cfg.Tencent.Languages,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		return e, nil

	case config.ProviderPiper:
		return tts.NewPiperEngine(cfg.Piper.Bin, cfg.Piper.Models, timeout), nil

	default:
		return nil, fmt.Errorf("%w: 不支持的合成服务 %q", config.ErrConfiguration, cfg.Provider)
	}
}

// buildPostProcessor 按配置创建后处理器。
func buildPostProcessor(cfg *config.Config) postprocess.Processor {
	return postprocess.New(postprocess.Config{
		Disabled:   cfg.PostProcess.Disabled,
		Bitrate:    cfg.PostProcess.Bitrate,
		Format:     cfg.PostProcess.Format,
		FFmpegPath: cfg.PostProcess.FFmpegPath,
	})
}

// engineConfig 把配置转换为调度参数。
func engineConfig(cfg *config.Config) engine.Config {
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Strategy:    retry.Strategy(cfg.Retry.Strategy),
		Delay:       config.Seconds(cfg.Retry.Delay),
		MinDelay:    config.Seconds(cfg.Retry.MinDelay),
		MaxDelay:    config.Seconds(cfg.Retry.MaxDelay),
		MinBytes:    cfg.Engine.MinBytes,
	}
	if cfg.Engine.VerifyMP3 {
		policy.Validate = audio.ValidateMP3
	}

	return engine.Config{
		Concurrency:       cfg.Engine.Concurrency,
		RequestsPerSecond: cfg.Engine.RequestsPerSecond,
		Retry:             policy,
		RetryFailedOnce:   cfg.RetryFailedOnce(),
		RetryPause:        config.Seconds(cfg.Engine.RetryPause),
	}
}
