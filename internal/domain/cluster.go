package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Method is a detection method bit.
type Method uint8

const (
	MethodTemporal Method = 1 << iota
	MethodAmountSimilarity
	MethodEarlyAccumulation
)

var methodNames = []struct {
	m    Method
	name string
}{
	{MethodTemporal, "temporal"},
	{MethodAmountSimilarity, "amount_similarity"},
	{MethodEarlyAccumulation, "early_accumulation"},
}

// Has reports whether m includes every bit of other.
func (m Method) Has(other Method) bool {
	return m&other == other && other != 0
}

// Names returns the method tags in fixed order.
func (m Method) Names() []string {
	var out []string
	for _, mn := range methodNames {
		if m.Has(mn.m) {
			out = append(out, mn.name)
		}
	}
	return out
}

func (m Method) String() string {
	return strings.Join(m.Names(), "+")
}

// ParseMethods is the inverse of Method.String.
func ParseMethods(s string) Method {
	var m Method
	for _, part := range strings.Split(s, "+") {
		for _, mn := range methodNames {
			if part == mn.name {
				m |= mn.m
			}
		}
	}
	return m
}

// Signal classifies a cluster score.
type Signal string

const (
	SignalStrongBuy Signal = "STRONG_BUY"
	SignalBuy       Signal = "BUY"
	SignalMonitor   Signal = "MONITOR"
)

// Actionable reports whether the signal may reach the safety gate.
func (s Signal) Actionable() bool {
	return s == SignalStrongBuy || s == SignalBuy
}

// ClusterStatus is the lifecycle state of a cluster.
type ClusterStatus string

const (
	ClusterActive  ClusterStatus = "ACTIVE"
	ClusterExpired ClusterStatus = "EXPIRED"
	ClusterActedOn ClusterStatus = "ACTED_ON"
)

// Cluster is a scored group of wallets that bought the same token in a coordinated way.
// Only Status changes after creation.
type Cluster struct {
	ID                 string
	Token              string
	Members            []string // sorted, unique
	Methods            Method
	WindowStart        time.Time
	WindowEnd          time.Time
	VolumeUSD          decimal.Decimal
	SmartMoneyFraction float64
	Score              int
	Signal             Signal
	Status             ClusterStatus
	DetectedAt         time.Time
	ExpiresAt          time.Time
}

// WindowWidth returns the span covered by the member buys.
func (c *Cluster) WindowWidth() time.Duration {
	return c.WindowEnd.Sub(c.WindowStart)
}

// Clone returns a deep copy safe to hand to other components.
func (c *Cluster) Clone() *Cluster {
	cp := *c
	cp.Members = append([]string(nil), c.Members...)
	return &cp
}
