/*
Copyright (c) hostp2pd authors.

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

package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIncEventAccumulatesPerTag(t *testing.T) {
	r := New()
	r.IncEvent("P2P-DEVICE-FOUND")
	r.IncEvent("P2P-DEVICE-FOUND")
	r.IncEvent("P2P-GROUP-STARTED")

	counters, _ := r.Snapshot()
	require.Equal(t, int64(2), counters["P2P-DEVICE-FOUND"])
	require.Equal(t, int64(1), counters["P2P-GROUP-STARTED"])
}

func TestSetLastResponseMessage(t *testing.T) {
	r := New()
	r.SetLastResponseMessage("OK")
	_, last := r.Snapshot()
	require.Equal(t, "OK", last)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	r.IncEvent("FAIL")
	counters, _ := r.Snapshot()
	counters["FAIL"] = 100
	counters2, _ := r.Snapshot()
	require.Equal(t, int64(1), counters2["FAIL"], "mutating a snapshot must not affect the registry")
}

func TestSysSamplerPopulatesCounters(t *testing.T) {
	r := New()
	s, err := NewSysSampler(r)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.sampleOnce()

	counters, _ := r.Snapshot()
	require.Contains(t, counters, "hostp2pd.sys.num_goroutine")
	require.Contains(t, counters, "hostp2pd.sys.heap_alloc")

	_ = ctx
}
