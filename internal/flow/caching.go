// Package flow holds the rule tables that turn a scenario configuration into
// an ordered step sequence. Everything here is pure: no clock, no state.
package flow

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/sysviz/model"
)

// CacheConfig is the discrete configuration of the caching scenario.
type CacheConfig struct {
	Operation     model.Operation     `json:"operation"`
	ReadStrategy  model.ReadStrategy  `json:"readStrategy"`
	WriteStrategy model.WriteStrategy `json:"writeStrategy"`
	CacheState    model.CacheState    `json:"cacheState"`
}

// DefaultCacheConfig matches the initial selection of the caching simulator.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Operation:     model.OpRead,
		ReadStrategy:  model.CacheAside,
		WriteStrategy: model.WriteThrough,
		CacheState:    model.CacheHit,
	}
}

// Summary is the configuration line logged at run start,
// e.g. "READ · cache-aside · MISS".
func (c CacheConfig) Summary() string {
	if c.Operation == model.OpWrite {
		return fmt.Sprintf("%s · %s", strings.ToUpper(string(c.Operation)), c.WriteStrategy)
	}
	s := fmt.Sprintf("%s · %s", strings.ToUpper(string(c.Operation)), c.ReadStrategy)
	if c.ReadStrategy != model.RefreshAhead {
		s += " · " + strings.ToUpper(string(c.CacheState))
	}
	return s
}

var (
	appRequest = model.Step{From: model.NodeApp, To: model.NodeServer, Label: "REQUEST", Dot: model.DotRequest, Log: "App → Server: GET /data", Type: model.LogInfo}
	appWrite   = model.Step{From: model.NodeApp, To: model.NodeServer, Label: "WRITE", Dot: model.DotFetch, Desc: "App sends write request to Server", Log: "App → Server: POST /data", Type: model.LogInfo}
)

// MakeCacheFlow returns the step sequence for a caching configuration.
// Unknown strategies fall through to the last rule of their operation, the
// same way the selection controls default.
func MakeCacheFlow(cfg CacheConfig) model.CacheFlow {
	if cfg.Operation == model.OpWrite {
		return cacheWriteFlow(cfg.WriteStrategy)
	}
	hit := cfg.CacheState == model.CacheHit

	switch cfg.ReadStrategy {
	case model.CacheAside:
		req := withDesc(appRequest, "App sends request to Backend Server")
		lookup := model.Step{From: model.NodeServer, To: model.NodeCache, Label: "1. Read from cache", Dot: model.DotHit, Desc: "Server checks Cache first", Log: "Server → Cache: lookup(key)", Type: model.LogFetch}
		if hit {
			return cacheFlow(true,
				req,
				lookup,
				model.Step{From: model.NodeCache, To: model.NodeServer, Label: "✓ Cache HIT", Dot: model.DotHit, Desc: "Cache returns data — HIT!", Log: "Cache: HIT — data found instantly ⚡", Type: model.LogHit},
				model.Step{From: model.NodeServer, To: model.NodeApp, Label: "RESPONSE", Dot: model.DotRequest, Desc: "Server returns cached data to App", Log: "Response delivered from cache", Type: model.LogResponse},
			)
		}
		return cacheFlow(false,
			req,
			lookup,
			model.Step{From: model.NodeCache, To: model.NodeServer, Label: "2. Cache Miss", Dot: model.DotMiss, Desc: "Cache MISS — data not found", Log: "Cache: MISS — going to database", Type: model.LogMiss, Pause: 300},
			model.Step{From: model.NodeServer, To: model.NodeDB, Label: "3. Read from data source", Dot: model.DotFetch, Desc: "Server fetches data from Database", Log: "Server → DB: query(key)", Type: model.LogFetch},
			model.Step{From: model.NodeDB, To: model.NodeServer, Label: "4. Here is the data", Dot: model.DotFetch, Desc: "Database returns data to Server", Log: "DB → Server: data returned", Type: model.LogFetch},
			model.Step{From: model.NodeServer, To: model.NodeCache, Label: "5. Update Cache", Dot: model.DotStore, Desc: "Server stores result in Cache", Log: "Server → Cache: store(key, data)", Type: model.LogStore},
			model.Step{From: model.NodeServer, To: model.NodeApp, Label: "RESPONSE", Dot: model.DotRequest, Desc: "Server sends response to App", Log: "Response delivered (from DB, now cached)", Type: model.LogResponse},
		)

	case model.ReadThrough:
		req := withDesc(appRequest, "App sends request to Server")
		delegate := model.Step{From: model.NodeServer, To: model.NodeCache, Label: "Read via cache", Dot: model.DotHit, Desc: "Server delegates read to Cache", Log: "Server → Cache: read-through(key)", Type: model.LogFetch}
		if hit {
			return cacheFlow(true,
				req,
				delegate,
				model.Step{From: model.NodeCache, To: model.NodeServer, Label: "✓ HIT", Dot: model.DotHit, Desc: "Cache serves data (HIT)", Log: "Cache HIT — served directly", Type: model.LogHit},
				model.Step{From: model.NodeServer, To: model.NodeApp, Label: "RESPONSE", Dot: model.DotRequest, Desc: "Server returns data to App", Log: "Response from cache", Type: model.LogResponse},
			)
		}
		return cacheFlow(false,
			req,
			delegate,
			model.Step{From: model.NodeCache, To: model.NodeDB, Label: "Cache fetches from DB", Dot: model.DotMiss, Desc: "Cache MISS — cache fetches DB", Log: "Cache → DB: miss, fetching data", Type: model.LogMiss},
			model.Step{From: model.NodeDB, To: model.NodeCache, Label: "Data returned", Dot: model.DotFetch, Desc: "DB returns data, cache populates", Log: "DB → Cache: data populated", Type: model.LogStore},
			model.Step{From: model.NodeCache, To: model.NodeServer, Label: "Serve data", Dot: model.DotHit, Desc: "Cache returns data to Server", Log: "Cache → Server: data served", Type: model.LogFetch},
			model.Step{From: model.NodeServer, To: model.NodeApp, Label: "RESPONSE", Dot: model.DotRequest, Desc: "Server sends response to App", Log: "Response delivered", Type: model.LogResponse},
		)
	}

	// refresh-ahead is always served from a pre-warmed cache. The background
	// refresh plays after the response in the same linear sequence.
	return cacheFlow(true,
		withDesc(appRequest, "App sends request to Server"),
		model.Step{From: model.NodeServer, To: model.NodeCache, Label: "Check cache", Dot: model.DotHit, Desc: "Server checks pre-warmed cache", Log: "Server → Cache: check(key)", Type: model.LogFetch},
		model.Step{From: model.NodeCache, To: model.NodeServer, Label: "⚡ Pre-cached", Dot: model.DotPreCached, Desc: "Cache serves pre-fetched data", Log: "Cache HIT (refresh-ahead pre-loaded)", Type: model.LogHit},
		model.Step{From: model.NodeServer, To: model.NodeApp, Label: "RESPONSE", Dot: model.DotRequest, Desc: "Instant response to App", Log: "Response delivered instantly ⚡", Type: model.LogResponse},
		model.Step{From: model.NodeCache, To: model.NodeDB, Label: "Background refresh", Dot: model.DotBackground, Desc: "[Async] Cache refreshes from DB", Log: "Background: Cache → DB async prefetch", Type: model.LogFetch},
		model.Step{From: model.NodeDB, To: model.NodeCache, Label: "Updated quietly", Dot: model.DotBackground, Desc: "[Async] Cache silently updated", Log: "Background: Cache refreshed, TTL reset", Type: model.LogStore},
	)
}

func cacheWriteFlow(ws model.WriteStrategy) model.CacheFlow {
	switch ws {
	case model.WriteThrough:
		return writeFlow(
			appWrite,
			model.Step{From: model.NodeServer, To: model.NodeCache, Label: "1. Write to Cache", Dot: model.DotStore, Desc: "Server writes to Cache simultaneously", Log: "Server → Cache: write(key, data)", Type: model.LogStore},
			model.Step{From: model.NodeServer, To: model.NodeDB, Label: "2. Write to DB", Dot: model.DotFetch, Desc: "Server writes to DB simultaneously", Log: "Server → DB: insert/update(key, data)", Type: model.LogStore},
			model.Step{From: model.NodeCache, To: model.NodeServer, Label: "✓ Cache ACK", Dot: model.DotStore, Desc: "Cache confirms write", Log: "Cache: write acknowledged", Type: model.LogAck},
			model.Step{From: model.NodeDB, To: model.NodeServer, Label: "✓ DB ACK", Dot: model.DotFetch, Desc: "DB confirms write", Log: "DB: write acknowledged", Type: model.LogAck},
			model.Step{From: model.NodeServer, To: model.NodeApp, Label: "ACK", Dot: model.DotRequest, Desc: "Server confirms write to App", Log: "Write confirmed — cache & DB in sync ✓", Type: model.LogResponse},
		)

	case model.WriteBehind:
		// The user-facing ACK precedes the asynchronous flush.
		return writeFlow(
			appWrite,
			model.Step{From: model.NodeServer, To: model.NodeCache, Label: "1. Write to Cache", Dot: model.DotStore, Desc: "Server writes to Cache immediately", Log: "Server → Cache: write(key, data) — fast!", Type: model.LogStore},
			model.Step{From: model.NodeServer, To: model.NodeApp, Label: "⚡ Fast ACK", Dot: model.DotRequest, Desc: "Server ACKs App immediately (no DB wait)", Log: "Write ACK before DB write ⚡", Type: model.LogResponse, Pause: 500},
			model.Step{From: model.NodeCache, To: model.NodeDB, Label: "2. Async write to DB", Dot: model.DotBackground, Desc: "[Async] Cache flushes to DB in background", Log: "Background: Cache → DB async flush", Type: model.LogStore},
			model.Step{From: model.NodeDB, To: model.NodeCache, Label: "DB persisted", Dot: model.DotBackground, Desc: "[Async] DB confirms persistence", Log: "DB: data persisted asynchronously", Type: model.LogAck},
		)
	}

	return writeFlow(
		appWrite,
		model.Step{From: model.NodeServer, To: model.NodeDB, Label: "1. Write directly to DB", Dot: model.DotFetch, Desc: "Server writes to DB, bypassing Cache", Log: "Server → DB: direct write (cache bypassed)", Type: model.LogStore},
		model.Step{From: model.NodeDB, To: model.NodeServer, Label: "✓ Persisted", Dot: model.DotFetch, Desc: "DB confirms write", Log: "DB: write confirmed", Type: model.LogAck},
		model.Step{From: model.NodeServer, To: model.NodeApp, Label: "ACK", Dot: model.DotRequest, Desc: "Server confirms write to App", Log: "Write confirmed — cache NOT updated", Type: model.LogResponse},
	)
}

// cacheFlow numbers the steps s1..sN and records the read outcome.
func cacheFlow(hit bool, steps ...model.Step) model.CacheFlow {
	return model.CacheFlow{Steps: numbered(steps), IsHit: &hit}
}

// writeFlow numbers the steps; writes carry no hit/miss classification.
func writeFlow(steps ...model.Step) model.CacheFlow {
	return model.CacheFlow{Steps: numbered(steps)}
}

func numbered(steps []model.Step) []model.Step {
	out := make([]model.Step, len(steps))
	for i, s := range steps {
		s.ID = fmt.Sprintf("s%d", i+1)
		out[i] = s
	}
	return out
}

func withDesc(s model.Step, desc string) model.Step {
	s.Desc = desc
	return s
}
