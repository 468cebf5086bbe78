package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iabetor/stemgen/internal/tts"
)

// recorder 记录等待时长而不真正 sleep。
type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func bytesOf(n int) []byte { return make([]byte, n) }

func invalid() error {
	return tts.NewError(tts.KindInvalidResponse, "fake", errors.New("HTTP 500"))
}

func TestDo_RetryCeiling(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 4, Delay: time.Second, MinBytes: 100, Sleep: rec.sleep}

	calls := 0
	res, err := p.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, invalid()
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, tts.KindInvalidResponse, tts.KindOf(err))
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, rec.delays)
}

func TestDo_UndersizedPayloadIsRetried(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 3, Delay: time.Second, MinBytes: 100, Sleep: rec.sleep}

	calls := 0
	res, err := p.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return bytesOf(50), nil
		}
		return bytesOf(300), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, res.Data, 300)
	assert.Len(t, rec.delays, 1)
}

func TestDo_PayloadAtThresholdFails(t *testing.T) {
	p := Policy{MaxAttempts: 2, MinBytes: 100, Sleep: (&recorder{}).sleep}
	res, err := p.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		return bytesOf(100), nil
	})
	require.Error(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Nil(t, res.Data)
}

func TestDo_TransportTwiceThenSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 10, Delay: time.Second, MinBytes: 100, Sleep: (&recorder{}).sleep}

	calls := 0
	res, err := p.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		calls++
		if calls <= 2 {
			return nil, tts.NewError(tts.KindTransport, "fake", errors.New("timeout"))
		}
		return bytesOf(300), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Data, 300)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 5, Sleep: rec.sleep}

	res, err := p.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		return nil, tts.NewError(tts.KindPermanent, "fake", errors.New("bad key"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, rec.delays)
}

func TestDo_ValidateHook(t *testing.T) {
	p := Policy{
		MaxAttempts: 2,
		Sleep:       (&recorder{}).sleep,
		Validate: func(b []byte) error {
			if b[0] != 'I' {
				return errors.New("not mp3")
			}
			return nil
		},
	}

	calls := 0
	res, err := p.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return []byte("<html>rate limited</html>"), nil
		}
		return []byte("ID3 looks like audio"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestDo_ExponentialWithinBounds(t *testing.T) {
	rec := &recorder{}
	p := Policy{
		MaxAttempts: 8,
		Strategy:    StrategyExponential,
		MinDelay:    5 * time.Second,
		MaxDelay:    120 * time.Second,
		Sleep:       rec.sleep,
	}

	_, err := p.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		return nil, tts.NewError(tts.KindRateLimited, "fake", errors.New("quota"))
	})
	require.Error(t, err)
	require.Len(t, rec.delays, 7)

	for _, d := range rec.delays {
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 120*time.Second)
	}
	// 随机抖动不超过 ±50%，第 7 次的区间下限已远高于第 1 次的上限
	assert.Greater(t, rec.delays[6], rec.delays[0])
}

func TestDo_BackpressureUsesCurveUnderFixed(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 3, Delay: 10 * time.Millisecond, MinDelay: 2 * time.Second, MaxDelay: 4 * time.Second, Sleep: rec.sleep}

	calls := 0
	_, err := p.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, tts.NewError(tts.KindUnavailable, "fake", errors.New("503"))
		}
		return nil, invalid()
	})
	require.Error(t, err)
	require.Len(t, rec.delays, 2)
	assert.GreaterOrEqual(t, rec.delays[0], 2*time.Second)
	assert.Equal(t, 10*time.Millisecond, rec.delays[1])
}

func TestDo_CanceledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 5,
		Delay:       time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepWithCtx(ctx, d)
		},
	}

	calls := 0
	res, err := p.Do(ctx, func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, invalid()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
}

func TestDo_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	res, err := Policy{MaxAttempts: 3}.Do(ctx, func(ctx context.Context) ([]byte, error) {
		called = true
		return bytesOf(500), nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, 0, res.Attempts)
}

func TestDo_OnRetryNotice(t *testing.T) {
	var notices []Notice
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond, Sleep: (&recorder{}).sleep, OnRetry: func(n Notice) { notices = append(notices, n) }}

	_, _ = p.Do(context.Background(), func(ctx context.Context) ([]byte, error) { return nil, invalid() })

	require.Len(t, notices, 2)
	assert.Equal(t, 1, notices[0].Attempt)
	assert.Equal(t, 3, notices[0].Total)
	assert.Equal(t, time.Millisecond, notices[1].Delay)
}
