package server

import (
	"sync/atomic"
)

// Metrics 记录房间运行期的关键指标（用于监控与调试）
type Metrics struct {
	TickCount          int64 // 统计的 Tick 次数
	TotalTickNs        int64 // Tick 累计耗时（纳秒）
	LateTicks          int64 // 超出时间预算的 Tick 数
	Connects           int64
	Disconnects        int64
	DuplicateConnects  int64
	TransportFailures  int64 // 因传输故障被动断开的连接数
	InputsAccepted     int64 // 被接受的输入数
	StaleInputs        int64 // 找不到玩家而丢弃的输入数
	MalformedMessages  int64 // 解码失败被丢弃的消息数
	SnapshotsSent      int64
	SnapshotsDropped   int64 // 不可靠队列满而丢弃的快照帧
	RejectedHandshakes int64 // 协议不匹配或满员被拒绝的握手
	Players            int64 // 当前在线玩家数
}

func (m *Metrics) IncConnect()           { atomic.AddInt64(&m.Connects, 1) }
func (m *Metrics) IncDisconnect()        { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) IncDuplicateConnect()  { atomic.AddInt64(&m.DuplicateConnects, 1) }
func (m *Metrics) IncTransportFailure()  { atomic.AddInt64(&m.TransportFailures, 1) }
func (m *Metrics) IncAccepted()          { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *Metrics) IncStaleInput()        { atomic.AddInt64(&m.StaleInputs, 1) }
func (m *Metrics) IncMalformed()         { atomic.AddInt64(&m.MalformedMessages, 1) }
func (m *Metrics) IncSnapshotSent()      { atomic.AddInt64(&m.SnapshotsSent, 1) }
func (m *Metrics) IncSnapshotDropped()   { atomic.AddInt64(&m.SnapshotsDropped, 1) }
func (m *Metrics) IncRejectedHandshake() { atomic.AddInt64(&m.RejectedHandshakes, 1) }
func (m *Metrics) IncLateTick() int64    { return atomic.AddInt64(&m.LateTicks, 1) }
func (m *Metrics) SetPlayers(n int)      { atomic.StoreInt64(&m.Players, int64(n)) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":          tick,
		"avg_tick_ms":         avgMs,
		"late_ticks":          atomic.LoadInt64(&m.LateTicks),
		"players":             atomic.LoadInt64(&m.Players),
		"connects":            atomic.LoadInt64(&m.Connects),
		"disconnects":         atomic.LoadInt64(&m.Disconnects),
		"duplicate_connects":  atomic.LoadInt64(&m.DuplicateConnects),
		"transport_failures":  atomic.LoadInt64(&m.TransportFailures),
		"inputs_accepted":     atomic.LoadInt64(&m.InputsAccepted),
		"stale_inputs":        atomic.LoadInt64(&m.StaleInputs),
		"malformed_messages":  atomic.LoadInt64(&m.MalformedMessages),
		"snapshots_sent":      atomic.LoadInt64(&m.SnapshotsSent),
		"snapshots_dropped":   atomic.LoadInt64(&m.SnapshotsDropped),
		"rejected_handshakes": atomic.LoadInt64(&m.RejectedHandshakes),
	}
}
