//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/energetica/chartd/serde"
	"github.com/energetica/chartd/session"
	lru "github.com/hashicorp/golang-lru"
)

// cachedSession is a session with its own lock. Only the dispatcher
// modifies it, readers and the flushers lock it to copy it.
type cachedSession struct {
	*sync.Mutex
	player string
	cs     *session.ChartSession
	dirty  bool // modified since the last flush
}

// sessionCache keeps the most recently used sessions. Only the
// dispatcher adds to it, so evictions happen on the dispatcher
// goroutine and never while a session is being modified.
type sessionCache struct {
	lru     *lru.Cache
	db      serde.SerDe
	tick    time.Duration
	onEvict func(*cachedSession)
}

func newSessionCache(size int, db serde.SerDe, tick time.Duration, onEvict func(*cachedSession)) (*sessionCache, error) {
	sc := &sessionCache{db: db, tick: tick, onEvict: onEvict}
	cache, err := lru.NewWithEvict(size, func(_, value interface{}) {
		sessionsCached.Dec()
		if sc.onEvict != nil {
			sc.onEvict(value.(*cachedSession))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("newSessionCache: %w", err)
	}
	sc.lru = cache
	return sc, nil
}

// getOrLoad returns the cached session of player, loading it from
// storage or creating it on a miss.
func (sc *sessionCache) getOrLoad(ctx context.Context, player string) (*cachedSession, error) {
	if v, ok := sc.lru.Get(player); ok {
		return v.(*cachedSession), nil
	}

	cs := session.New(sc.tick)
	states, err := sc.db.FetchSession(ctx, player)
	switch {
	case err == nil:
		if err := cs.Import(states); err != nil {
			return nil, fmt.Errorf("getOrLoad(%s): %w", player, err)
		}
	case errors.Is(err, serde.ErrNotFound):
		// new player
	default:
		return nil, fmt.Errorf("getOrLoad(%s): %w", player, err)
	}

	c := &cachedSession{Mutex: &sync.Mutex{}, player: player, cs: cs}
	sc.lru.Add(player, c)
	sessionsCached.Inc()
	return c, nil
}

// peek returns the cached session without updating its recentness,
// or nil.
func (sc *sessionCache) peek(player string) *cachedSession {
	if sc == nil {
		return nil
	}
	if v, ok := sc.lru.Peek(player); ok {
		return v.(*cachedSession)
	}
	return nil
}

func (sc *sessionCache) all() []*cachedSession {
	var result []*cachedSession
	for _, key := range sc.lru.Keys() {
		if v, ok := sc.lru.Peek(key); ok {
			result = append(result, v.(*cachedSession))
		}
	}
	return result
}

func (sc *sessionCache) len() int {
	return sc.lru.Len()
}
