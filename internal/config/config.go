package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iabetor/stemgen/internal/catalog"
)

// ErrConfiguration 表示配置无法运行，任何任务开始前就应退出。
var ErrConfiguration = errors.New("配置错误")

// 支持的合成服务。
const (
	ProviderGoogle  = "google"
	ProviderGemini  = "gemini"
	ProviderEdge    = "edge"
	ProviderTencent = "tencent"
	ProviderPiper   = "piper"
)

// Config 是 stemgen 的顶层配置结构。
type Config struct {
	Provider    string            `yaml:"provider"`
	Google      GoogleConfig      `yaml:"google"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	Edge        EdgeConfig        `yaml:"edge"`
	Tencent     TencentConfig     `yaml:"tencent"`
	Piper       PiperConfig       `yaml:"piper"`
	Output      OutputConfig      `yaml:"output"`
	Engine      EngineConfig      `yaml:"engine"`
	Retry       RetryConfig       `yaml:"retry"`
	PostProcess PostProcessConfig `yaml:"postprocess"`
	Phases      PhasesConfig      `yaml:"phases"`
	// Catalog 为空时按服务选择内置目录：gemini 用口语化目录，其余用默认目录。
	Catalog *catalog.Spec `yaml:"catalog"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Log     LogConfig     `yaml:"log"`
}

// GoogleConfig Google 翻译 TTS 配置。
type GoogleConfig struct {
	URL           string            `yaml:"url"`
	Client        string            `yaml:"client"`
	LanguageCodes map[string]string `yaml:"language_codes"`
	UserAgents    []string          `yaml:"user_agents"`
}

// GeminiConfig 生成式 TTS 配置。
type GeminiConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Model    string            `yaml:"model"`
	APIKeys  []string          `yaml:"api_keys"`
	Voices   map[string]string `yaml:"voices"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	Voices map[string]string `yaml:"voices"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	Credentials []TencentCredential `yaml:"credentials"`
	Region      string              `yaml:"region"`
	VoiceTypes  map[string]int64    `yaml:"voice_types"`
	Languages   map[string]int64    `yaml:"languages"`
}

// TencentCredential 一组腾讯云密钥。
type TencentCredential struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
}

// PiperConfig Piper 离线合成配置。
type PiperConfig struct {
	Bin    string            `yaml:"bin"`
	Models map[string]string `yaml:"models"`
}

// OutputConfig 输出目录。
type OutputConfig struct {
	StemsDir string `yaml:"stems_dir"`
	CacheDir string `yaml:"cache_dir"`
}

// EngineConfig 调度配置。时间单位为秒。
type EngineConfig struct {
	Concurrency       int     `yaml:"concurrency"`
	RequestTimeout    float64 `yaml:"request_timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MinBytes          int     `yaml:"min_bytes"`
	VerifyMP3         bool    `yaml:"verify_mp3"`
	RetryFailedOnce   *bool   `yaml:"retry_failed_once"`
	RetryPause        float64 `yaml:"retry_pause"`
}

// RetryConfig 重试配置。时间单位为秒。
type RetryConfig struct {
	Strategy    string  `yaml:"strategy"`
	MaxAttempts int     `yaml:"max_attempts"`
	Delay       float64 `yaml:"delay"`
	MinDelay    float64 `yaml:"min_delay"`
	MaxDelay    float64 `yaml:"max_delay"`
}

// PostProcessConfig 后处理配置。
type PostProcessConfig struct {
	Disabled   bool   `yaml:"disabled"`
	Bitrate    string `yaml:"bitrate"`
	Format     string `yaml:"format"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// PhasesConfig 阶段开关。
type PhasesConfig struct {
	SkipStems bool `yaml:"skip_stems"`
	SkipCache bool `yaml:"skip_cache"`
}

// LedgerConfig 运行记录库配置。
type LedgerConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开；path 为空时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}

		// 展开环境变量，如 ${GEMINI_API_KEY}
		expanded := os.Expand(string(data), func(key string) string {
			return os.Getenv(key)
		})

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("%w: 解析配置文件 %s 失败: %v", ErrConfiguration, path, err)
		}
	}

	loadEnvCredentials(cfg)
	setDefaults(cfg)
	return cfg, nil
}

// loadEnvCredentials 从环境变量补充密钥。
// GEMINI_API_KEY, GEMINI_API_KEY_2, ... 遇到第一个空缺即停止。
func loadEnvCredentials(cfg *Config) {
	for _, key := range numberedEnv("GEMINI_API_KEY") {
		cfg.Gemini.APIKeys = append(cfg.Gemini.APIKeys, key)
	}
	cfg.Gemini.APIKeys = dedupe(cfg.Gemini.APIKeys)

	ids := numberedEnv("TENCENTCLOUD_SECRET_ID")
	keys := numberedEnv("TENCENTCLOUD_SECRET_KEY")
	for i := 0; i < len(ids) && i < len(keys); i++ {
		cfg.Tencent.Credentials = append(cfg.Tencent.Credentials, TencentCredential{SecretID: ids[i], SecretKey: keys[i]})
	}
}

func numberedEnv(base string) []string {
	var out []string
	if v := strings.TrimSpace(os.Getenv(base)); v != "" {
		out = append(out, v)
	} else {
		return nil
	}
	for i := 2; ; i++ {
		v := strings.TrimSpace(os.Getenv(base + "_" + strconv.Itoa(i)))
		if v == "" {
			return out
		}
		out = append(out, v)
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderGoogle
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	gemini := cfg.Provider == ProviderGemini

	if cfg.Google.URL == "" {
		cfg.Google.URL = "https://translate.google.com/translate_tts"
	}
	if cfg.Google.Client == "" {
		cfg.Google.Client = "tw-ob"
	}
	if cfg.Google.LanguageCodes == nil {
		cfg.Google.LanguageCodes = map[string]string{"en": "en-gb", "th": "th"}
	}

	if cfg.Gemini.Endpoint == "" {
		cfg.Gemini.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash-preview-tts"
	}
	if cfg.Gemini.Voices == nil {
		cfg.Gemini.Voices = map[string]string{"en": "Despina", "th": "Algieba"}
	}

	if cfg.Edge.Voices == nil {
		cfg.Edge.Voices = map[string]string{"en": "en-GB-SoniaNeural", "th": "th-TH-PremwadeeNeural"}
	}

	if cfg.Tencent.Region == "" {
		cfg.Tencent.Region = "ap-guangzhou"
	}

	if cfg.Output.StemsDir == "" {
		cfg.Output.StemsDir = "./public/media/audio_stems"
	}
	if cfg.Output.CacheDir == "" {
		cfg.Output.CacheDir = "./public/media/audio_cache/multi"
	}

	// 生成式服务配额很紧，按顺序慢速请求
	if cfg.Engine.Concurrency == 0 {
		cfg.Engine.Concurrency = 20
		if gemini {
			cfg.Engine.Concurrency = 1
		}
	}
	if cfg.Engine.RequestTimeout == 0 {
		cfg.Engine.RequestTimeout = 5
		if gemini {
			cfg.Engine.RequestTimeout = 60
		}
	}
	if cfg.Engine.RequestsPerSecond == 0 && gemini {
		cfg.Engine.RequestsPerSecond = 0.2
	}
	if cfg.Engine.MinBytes == 0 {
		cfg.Engine.MinBytes = 100
	}
	if cfg.Engine.RetryFailedOnce == nil {
		v := gemini
		cfg.Engine.RetryFailedOnce = &v
	}
	if cfg.Engine.RetryPause == 0 {
		cfg.Engine.RetryPause = 10
	}

	if cfg.Retry.Strategy == "" {
		cfg.Retry.Strategy = "fixed"
		if gemini {
			cfg.Retry.Strategy = "exponential"
		}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 10
		if gemini {
			cfg.Retry.MaxAttempts = 6
		}
	}
	if cfg.Retry.Delay == 0 {
		cfg.Retry.Delay = 1
	}
	if cfg.Retry.MinDelay == 0 {
		cfg.Retry.MinDelay = 5
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 120
	}

	if cfg.PostProcess.Bitrate == "" {
		cfg.PostProcess.Bitrate = "32k"
	}
	if cfg.PostProcess.Format == "" {
		cfg.PostProcess.Format = "mp3"
	}
	if cfg.PostProcess.FFmpegPath == "" {
		cfg.PostProcess.FFmpegPath = "ffmpeg"
	}

	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./.stemgen/ledger.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate 检查配置是否可以运行，错误都包装 ErrConfiguration。
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	switch c.Provider {
	case ProviderGoogle:
	case ProviderGemini:
		if len(c.Gemini.APIKeys) == 0 {
			add("gemini 需要至少一个 API Key（gemini.api_keys 或 GEMINI_API_KEY）")
		}
	case ProviderEdge:
	case ProviderTencent:
		if len(c.Tencent.Credentials) == 0 {
			add("tencent 需要至少一组密钥（tencent.credentials 或 TENCENTCLOUD_SECRET_ID/KEY）")
		}
		for i, cred := range c.Tencent.Credentials {
			if cred.SecretID == "" || cred.SecretKey == "" {
				add("tencent 第 %d 组密钥不完整", i+1)
			}
		}
	case ProviderPiper:
		if len(c.Piper.Models) == 0 {
			add("piper 需要为每种语言配置模型（piper.models）")
		}
	default:
		add("不支持的合成服务: %q", c.Provider)
	}

	// gemini 和 piper 输出 WAV，必须重编码为 MP3
	if (c.Provider == ProviderGemini || c.Provider == ProviderPiper) && c.PostProcess.Disabled {
		add("%s 输出 WAV，不能关闭后处理", c.Provider)
	}
	if (c.Provider == ProviderGemini || c.Provider == ProviderPiper) && c.Engine.VerifyMP3 {
		add("%s 输出 WAV，不能开启 engine.verify_mp3", c.Provider)
	}

	if c.Engine.Concurrency < 1 {
		add("engine.concurrency 必须 >= 1，实际 %d", c.Engine.Concurrency)
	}
	if c.Engine.RequestTimeout <= 0 {
		add("engine.request_timeout 必须 > 0")
	}
	if c.Engine.RequestsPerSecond < 0 {
		add("engine.requests_per_second 不能为负数")
	}
	if c.Engine.MinBytes < 0 {
		add("engine.min_bytes 不能为负数")
	}
	if c.Engine.RetryPause < 0 {
		add("engine.retry_pause 不能为负数")
	}

	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts 必须 >= 1，实际 %d", c.Retry.MaxAttempts)
	}
	switch c.Retry.Strategy {
	case "fixed", "exponential":
	default:
		add("不支持的重试策略: %q", c.Retry.Strategy)
	}
	if c.Retry.Delay < 0 || c.Retry.MinDelay < 0 || c.Retry.MaxDelay < 0 {
		add("retry 的等待时间不能为负数")
	}
	if c.Retry.MaxDelay < c.Retry.MinDelay {
		add("retry.max_delay 不能小于 retry.min_delay")
	}

	if c.Output.StemsDir == "" || c.Output.CacheDir == "" {
		add("output.stems_dir 和 output.cache_dir 不能为空")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// CatalogSpec 返回目录定义。
func (c *Config) CatalogSpec() catalog.Spec {
	if c.Catalog != nil {
		return *c.Catalog
	}
	if c.Provider == ProviderGemini {
		return catalog.SpokenSpec()
	}
	return catalog.DefaultSpec()
}

// RetryFailedOnce 报告是否自动重跑失败任务。
func (c *Config) RetryFailedOnce() bool {
	return c.Engine.RetryFailedOnce != nil && *c.Engine.RetryFailedOnce
}

// Seconds 把配置中的秒数转换为 time.Duration。
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
