package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidValue is returned when a configuration string does not name a
// known enumeration member.
var ErrInvalidValue = errors.New("invalid value")

// Scenario names a concept simulator.
type Scenario string

const (
	ScenarioCaching      Scenario = "caching"
	ScenarioLoadBalancer Scenario = "load-balancer"
)

// Scenarios lists every scenario in display order.
var Scenarios = []Scenario{ScenarioCaching, ScenarioLoadBalancer}

// Operation is the caching request kind.
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// ReadStrategy selects the modeled cache read path.
type ReadStrategy string

const (
	CacheAside   ReadStrategy = "cache-aside"
	ReadThrough  ReadStrategy = "read-through"
	RefreshAhead ReadStrategy = "refresh-ahead"
)

// WriteStrategy selects the modeled cache write path.
type WriteStrategy string

const (
	WriteThrough WriteStrategy = "write-through"
	WriteBehind  WriteStrategy = "write-behind"
	WriteAround  WriteStrategy = "write-around"
)

// CacheState is the simulated lookup outcome for hit/miss capable reads.
type CacheState string

const (
	CacheHit  CacheState = "hit"
	CacheMiss CacheState = "miss"
)

// Algorithm is a load-balancing target selection policy.
type Algorithm string

const (
	RoundRobin       Algorithm = "round-robin"
	LeastConnections Algorithm = "least-conn"
	IPHash           Algorithm = "ip-hash"
	Weighted         Algorithm = "weighted"
)

// ServerID names one of the three backend targets.
type ServerID string

const (
	ServerS1 ServerID = "s1"
	ServerS2 ServerID = "s2"
	ServerS3 ServerID = "s3"
)

// Servers is the target enumeration order used for tie-breaking.
var Servers = []ServerID{ServerS1, ServerS2, ServerS3}

// Label returns the display name of a server, e.g. "Server 2".
func (s ServerID) Label() string {
	switch s {
	case ServerS1:
		return "Server 1"
	case ServerS2:
		return "Server 2"
	case ServerS3:
		return "Server 3"
	}
	return string(s)
}

// ParseScenario accepts the canonical names plus a few aliases used by
// URLs and the CLI.
func ParseScenario(s string) (Scenario, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "caching", "cache":
		return ScenarioCaching, nil
	case "load-balancer", "loadbalancer", "lb":
		return ScenarioLoadBalancer, nil
	}
	return "", fmt.Errorf("scenario %q: %w", s, ErrInvalidValue)
}

func ParseOperation(s string) (Operation, error) {
	switch Operation(strings.ToLower(s)) {
	case OpRead:
		return OpRead, nil
	case OpWrite:
		return OpWrite, nil
	}
	return "", fmt.Errorf("operation %q: %w", s, ErrInvalidValue)
}

func ParseReadStrategy(s string) (ReadStrategy, error) {
	switch r := ReadStrategy(strings.ToLower(s)); r {
	case CacheAside, ReadThrough, RefreshAhead:
		return r, nil
	}
	return "", fmt.Errorf("read strategy %q: %w", s, ErrInvalidValue)
}

func ParseWriteStrategy(s string) (WriteStrategy, error) {
	switch w := WriteStrategy(strings.ToLower(s)); w {
	case WriteThrough, WriteBehind, WriteAround:
		return w, nil
	}
	return "", fmt.Errorf("write strategy %q: %w", s, ErrInvalidValue)
}

func ParseCacheState(s string) (CacheState, error) {
	switch c := CacheState(strings.ToLower(s)); c {
	case CacheHit, CacheMiss:
		return c, nil
	}
	return "", fmt.Errorf("cache state %q: %w", s, ErrInvalidValue)
}

// ParseAlgorithm accepts "least-connections" as an alias of least-conn.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(s)); a {
	case RoundRobin, LeastConnections, IPHash, Weighted:
		return a, nil
	case "least-connections":
		return LeastConnections, nil
	}
	return "", fmt.Errorf("algorithm %q: %w", s, ErrInvalidValue)
}

func ParseServer(s string) (ServerID, error) {
	switch id := ServerID(strings.ToLower(s)); id {
	case ServerS1, ServerS2, ServerS3:
		return id, nil
	}
	return "", fmt.Errorf("server %q: %w", s, ErrInvalidValue)
}
