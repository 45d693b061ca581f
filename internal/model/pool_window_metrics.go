package model

import "time"

// PoolWindowMetrics stores aggregated router activity for a pool window.
type PoolWindowMetrics struct {
	ChainID        uint64
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	AddCount       uint64
	RemoveCount    uint64
	PartialCount   uint64
	Volume0        string
	Volume1        string
	Fee0           string
	Fee1           string
	Added0         string
	Added1         string
	Removed0       string
	Removed1       string
	FeeRate0       *string
	FeeRate1       *string
	Reserve0       *string
	Reserve1       *string
	APR            *string
	FeeMethod      string
	ReserveMethod  string
}
