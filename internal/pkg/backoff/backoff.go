// internal/pkg/backoff/backoff.go
package backoff

import (
	"math/rand"
	"time"
)

// Policy 定义指数退避策略：delay = Base * 2^(attempt-1)，封顶 Cap，
// 再叠加最多 Jitter 比例的随机抖动。购买执行与通知投递共用同一策略，
// 避免各处散落手写的重试循环。
type Policy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64 // [0,1)，0 表示无抖动
}

// Default 返回默认策略：2s 起步，60s 封顶，10% 抖动。
func Default() Policy {
	return Policy{Base: 2 * time.Second, Cap: 60 * time.Second, Jitter: 0.1}
}

// Delay 计算第 attempt 次失败后的等待时长，attempt 从 1 开始。
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
		if d > p.Cap {
			d = p.Cap
		}
	}
	return d
}
