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
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
)

var runtimeInterval = 5 * time.Second

func runtimeMemory() uint64 {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return mem.Alloc
}

func runtimeCpuPercent() float64 {
	ps, _ := cpu.Percent(0, false)
	if len(ps) > 0 {
		return ps[0]
	}
	return 0
}

func reportRuntime(wg *sync.WaitGroup, stop <-chan struct{}) {
	defer wg.Done()
	ticker := time.NewTicker(runtimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runtimeCpu.Set(runtimeCpuPercent())
			runtimeMem.Set(float64(runtimeMemory()))
		case <-stop:
			return
		}
	}
}
