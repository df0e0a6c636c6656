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

package cfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFillDefaultsFillsZeroValues(t *testing.T) {
	var c Config
	c.FillDefaults()

	require.Equal(t, "_journal_mode=WAL&_synchronous=1&_busy_timeout=5000", c.DatabaseOptions)
	require.Equal(t, 25, c.FetchBudget)
	require.Equal(t, int64(100*1024), c.MaxResponseBodySize)
	require.Equal(t, time.Second*10, c.FetchTimeout)
	require.Equal(t, 3, c.MaxRedirects)
	require.Equal(t, 10000, c.ActorCacheSize)
	require.Equal(t, time.Hour*24, c.ActorCacheTTL)
	require.Equal(t, time.Hour*24*7, c.ReceivedBagTTL)
	require.Equal(t, 16, c.DeliveryBatchSize)
	require.Equal(t, 8, c.DeliveryConcurrency)
	require.Equal(t, time.Second*10, c.DeliveryOutboundTimeout)
	require.Equal(t, time.Second*3, c.BackoffBase)
	require.Equal(t, 3.0, c.BackoffFactor)
	require.Equal(t, 10, c.MaxDeliveryAttempts)
	require.Equal(t, time.Second*9, c.InboundProcessingBudget)
	require.Equal(t, int64(1024*1024), c.MaxRequestBodySize)
	require.Equal(t, time.Minute*5, c.MaxRequestAge)
	require.Equal(t, 64, c.FollowersBatchSize)
	require.Equal(t, time.Second*60, c.ReconciliationInterval)
	require.Equal(t, time.Second*30, c.ShutdownDrainTimeout)
	require.Equal(t, time.Second*60, c.StatsInterval)
	require.Equal(t, 1, c.ShardCount)
}

func TestFillDefaultsLeavesExplicitValuesAlone(t *testing.T) {
	c := Config{
		FetchBudget:         5,
		MaxRedirects:        1,
		DeliveryConcurrency: 3,
		BackoffFactor:       1.5,
		ShardCount:          4,
	}
	c.FillDefaults()

	require.Equal(t, 5, c.FetchBudget)
	require.Equal(t, 1, c.MaxRedirects)
	require.Equal(t, 3, c.DeliveryConcurrency)
	require.Equal(t, 1.5, c.BackoffFactor)
	require.Equal(t, 4, c.ShardCount)
}

func TestFillDefaultsShortensActorCacheTTLInDebug(t *testing.T) {
	c := Config{Debug: true}
	c.FillDefaults()
	require.Equal(t, time.Second*10, c.ActorCacheTTL)
}

func TestFillDefaultsRejectsNegativeDeliveryConcurrency(t *testing.T) {
	c := Config{DeliveryConcurrency: -1}
	c.FillDefaults()
	require.Equal(t, 8, c.DeliveryConcurrency)
}
