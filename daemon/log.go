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

package daemon

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

func init() {
	log.SetPrefix(fmt.Sprintf("[%d] ", os.Getpid()))
}

var (
	logMu      sync.Mutex
	logFile    *os.File
	cycleLogCh = make(chan int)
	quitting   int32
)

func isQuitting() bool {
	return atomic.LoadInt32(&quitting) != 0
}

var timeNow = func() time.Time {
	return time.Now()
}

var osRename = func(a, b string) error {
	return os.Rename(a, b)
}

var renameLogFile = func(logPath string) string {
	logDir, name := filepath.Split(logPath)
	fullpath := filepath.Join(logDir, timeNow().Format(name+"-20060102_150405"))
	log.Printf("Starting new log file, current log archived as: '%s'", fullpath)
	if err := osRename(logPath, fullpath); err != nil {
		log.Printf("renameLogFile(): %v", err)
	}
	return fullpath
}

var cycleLogFile = func(logPath string) error {
	logMu.Lock()
	defer logMu.Unlock()

	if logFile != nil {
		renameLogFile(logPath)
	}

	file, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0666)
	if err != nil {
		return fmt.Errorf("Unable to open log file '%s': %w", logPath, err)
	}

	log.SetOutput(file)
	if logFile != nil {
		logFile.Close()
	}
	logFile = file
	return nil
}

func closeLogFile() {
	logMu.Lock()
	defer logMu.Unlock()
	log.SetOutput(os.Stderr)
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

var logFileCycler = func(logPath string, logCycle time.Duration) {

	if err := cycleLogFile(logPath); err != nil { // Initial cycle
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	go func() { // Wait for a cycle signal
		for range cycleLogCh {
			if isQuitting() {
				return
			}
			if err := cycleLogFile(logPath); err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			}
		}
	}()

	go func() { // Periodic cycling
		for !isQuitting() {
			time.Sleep(logCycle)
			cycleLogCh <- 1
		}
	}()
}
