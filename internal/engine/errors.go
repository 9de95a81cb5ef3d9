package engine

import "errors"

// 引擎对外的哨兵错误，调用侧用 errors.Is 判断。
var (
	// ErrEngineStopped 引擎未运行时拒绝下单
	ErrEngineStopped = errors.New("engine not running")
	// ErrNoMarketData 市价单到达前该交易对从未收到行情
	ErrNoMarketData = errors.New("no market data for symbol")
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrPositionNotFound 仓位不存在
	ErrPositionNotFound = errors.New("position not found")
	// ErrAlreadyTerminal 订单已处于终态
	ErrAlreadyTerminal = errors.New("order already in terminal state")
	// ErrOverClose 平仓数量超过持仓数量
	ErrOverClose = errors.New("close quantity exceeds position quantity")
)
