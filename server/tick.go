package server

import (
	"context"
	"time"
)

// Interval 单个 Tick 的时间预算
func (r *Room) Interval() time.Duration {
	return time.Second / time.Duration(r.cfg.TickHz)
}

// Run 启动房间的 Tick 循环（单线程推进世界），ctx 取消时退出并关闭所有连接
//
// 超时策略：time.Ticker 会丢弃错过的 Tick，下一次 Tick 按真实经过时间积分，
// 但最多补偿 CatchupMaxTicks 个间隔。
func (r *Room) Run(ctx context.Context) error {
	interval := r.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer r.shutdown()

	r.log.Infow("tick loop started", "tick_hz", r.cfg.TickHz, "interval", interval, "catchup_ticks", r.cfg.CatchupMaxTicks)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.log.Infow("tick loop stopped", "tick", r.tick)
			return nil
		case now := <-ticker.C:
			// 核心循环：连接事件 → 输入 → 更新世界 → 广播结果
			dt := clampDt(now.Sub(last), interval, r.cfg.CatchupMaxTicks)
			last = now

			start := time.Now()
			r.Step(dt)
			elapsed := time.Since(start)
			r.metrics.AddTick(elapsed.Nanoseconds())
			if elapsed > interval {
				r.reportLateTick(elapsed, interval)
			}
		}
	}
}

// clampDt 非正的间隔按一个 Tick 计，超出部分最多补偿 maxTicks 个间隔
func clampDt(dt, interval time.Duration, maxTicks int) time.Duration {
	maxDt := interval * time.Duration(maxTicks)
	switch {
	case dt <= 0:
		return interval
	case dt > maxDt:
		return maxDt
	}
	return dt
}

func (r *Room) reportLateTick(elapsed, budget time.Duration) {
	count := r.metrics.IncLateTick()
	// 只在 1, 2, 4, 8... 次时记录，避免日志刷屏
	if count&(count-1) == 0 {
		r.log.Warnw("tick overran budget", "tick", r.tick, "elapsed", elapsed, "budget", budget, "late_ticks", count)
	}
}
