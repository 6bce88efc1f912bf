package algo

import (
	"errors"
	"math"
)

const (
	// 数值常量
	FORWARD  = 1
	BACKWARD = 2

	// 浮点比较精度
	EPS = 1e-9
)

var (
	INF = math.Inf(1)

	// 错误：结点不存在
	ErrNodeNotExist = errors.New("node not exists")
	// 错误：边不存在
	ErrEdgeNotExist = errors.New("edge not exists")
	// 错误：边权非法
	ErrInvalidCost = errors.New("edge cost should be positive and finite")
)
