package risk

import "time"

// Clock 抽象时间便于测试，日内累计的跨日重置依赖它。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NowUTC 默认时钟，统一按 UTC 计算交易日。
var NowUTC Clock = realClock{}
