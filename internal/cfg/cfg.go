/*
Copyright 2023 - 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cfg defines the federation daemon's configuration file format
// and defaults.
package cfg

import (
	"math"
	"time"
)

// Config represents a federation daemon configuration file. A zero value
// for any field means "unset"; call FillDefaults to fill in the rest.
type Config struct {
	Debug bool

	DatabasePath    string
	DatabaseOptions string

	// object fetcher
	FetchBudget         int
	MaxResponseBodySize int64
	FetchTimeout        time.Duration
	MaxRedirects        int
	ActorCacheSize      int
	ActorCacheTTL       time.Duration

	// activity log / inbound dedup
	ReceivedBagTTL time.Duration

	// delivery queue
	DeliveryBatchSize     int
	DeliveryConcurrency   int
	DeliveryOutboundTimeout time.Duration
	BackoffBase           time.Duration
	BackoffFactor         float64
	MaxDeliveryAttempts   int

	// inbound router
	InboundProcessingBudget time.Duration
	MaxRequestBodySize      int64
	MaxRequestAge           time.Duration

	// community fan-out
	FollowersBatchSize int

	// supervisor
	ReconciliationInterval time.Duration
	ShutdownDrainTimeout   time.Duration
	StatsInterval          time.Duration
	ShardIndex             int
	ShardCount             int

	AllowedDomains []string
	BlockedDomains []string
}

// FillDefaults replaces missing or invalid settings with defaults. TTLs
// that would make for a slow feedback loop in local development are
// shortened when Debug is set.
func (c *Config) FillDefaults() {
	if c.DatabaseOptions == "" {
		c.DatabaseOptions = "_journal_mode=WAL&_synchronous=1&_busy_timeout=5000"
	}

	if c.FetchBudget <= 0 {
		c.FetchBudget = 25
	}

	if c.MaxResponseBodySize <= 0 {
		c.MaxResponseBodySize = 100 * 1024
	}

	if c.FetchTimeout <= 0 {
		c.FetchTimeout = time.Second * 10
	}

	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 3
	}

	if c.ActorCacheSize <= 0 {
		c.ActorCacheSize = 10000
	}

	if c.ActorCacheTTL <= 0 {
		if c.Debug {
			c.ActorCacheTTL = time.Second * 10
		} else {
			c.ActorCacheTTL = time.Hour * 24
		}
	}

	if c.ReceivedBagTTL <= 0 {
		c.ReceivedBagTTL = time.Hour * 24 * 7
	}

	if c.DeliveryBatchSize <= 0 {
		c.DeliveryBatchSize = 16
	}

	if c.DeliveryConcurrency <= 0 || c.DeliveryConcurrency > math.MaxInt {
		c.DeliveryConcurrency = 8
	}

	if c.DeliveryOutboundTimeout <= 0 {
		c.DeliveryOutboundTimeout = time.Second * 10
	}

	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second * 3
	}

	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 3
	}

	if c.MaxDeliveryAttempts <= 0 {
		c.MaxDeliveryAttempts = 10
	}

	if c.InboundProcessingBudget <= 0 {
		c.InboundProcessingBudget = time.Second * 9
	}

	if c.MaxRequestBodySize <= 0 {
		c.MaxRequestBodySize = 1024 * 1024
	}

	if c.MaxRequestAge <= 0 {
		c.MaxRequestAge = time.Minute * 5
	}

	if c.FollowersBatchSize <= 0 {
		c.FollowersBatchSize = 64
	}

	if c.ReconciliationInterval <= 0 {
		c.ReconciliationInterval = time.Second * 60
	}

	if c.ShutdownDrainTimeout <= 0 {
		c.ShutdownDrainTimeout = time.Second * 30
	}

	if c.StatsInterval <= 0 {
		c.StatsInterval = time.Second * 60
	}

	if c.ShardCount <= 0 {
		c.ShardCount = 1
	}
}
