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
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/energetica/chartd/misc"
	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/session"
	"github.com/kelseyhightower/envconfig"
)

type Config struct { // Needs to be exported for TOML to work
	PidPath             string        `toml:"pid-file"`
	LogPath             string        `toml:"log-file"`
	LogCycle            duration      `toml:"log-cycle-interval"`
	DbConnectString     string        `toml:"db-connect-string"`
	DbTablePrefix       string        `toml:"db-table-prefix"`
	HttpListenSpec      string        `toml:"http-listen-spec"`
	TextListenSpec      string        `toml:"text-listen-spec"`
	PickleListenSpec    string        `toml:"pickle-listen-spec"`
	MaxCachedSessions   int           `toml:"max-cached-sessions"`
	FlushInterval       duration      `toml:"flush-interval"`
	MaxFlushesPerSecond int           `toml:"max-flushes-per-second"`
	MaxGapFill          int64         `toml:"max-gap-fill"`
	TickDuration        duration      `toml:"tick-duration"`
	Categories          []string      `toml:"categories"`
	Blaster             blasterConfig `toml:"blaster"`

	env envOverrides
}

type blasterConfig struct {
	Enabled bool   `toml:"enabled"`
	Prefix  string `toml:"prefix"`
	Players int    `toml:"players"`
	Rate    int    `toml:"rate"`
}

// envOverrides are read from CHARTD_LOG, CHARTD_DB_CONNECT and
// CHARTD_BIND.
type envOverrides struct {
	Log       string `envconfig:"LOG"`
	DbConnect string `envconfig:"DB_CONNECT"`
	Bind      string `envconfig:"BIND"`
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = misc.BetterParseDuration(string(text))
	return err
}

var readConfig = func(cfgPath string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("chartd", &cfg.env); err != nil {
		return nil, err
	}
	return cfg, nil
}

func absPath(what, path, wd string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s setting empty", what)
	}
	if !filepath.IsAbs(path) {
		if wd == "" {
			return "", fmt.Errorf("%s must be absolute path if working directory cannot be determined", what)
		}
		path = filepath.Join(wd, path)
	}
	dir, _ := filepath.Split(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("Unable to create directory: '%s' (%v).", dir, err)
	}
	return path, nil
}

func (c *Config) processConfigPidFile(wd string) error {
	path, err := absPath("pid-file", c.PidPath, wd)
	if err != nil {
		return err
	}
	c.PidPath = path
	return nil
}

func (c *Config) processConfigLogFile(wd string) error {
	if c.env.Log != "" {
		c.LogPath = c.env.Log
	}
	path, err := absPath("log-file", c.LogPath, wd)
	if err != nil {
		return err
	}
	c.LogPath = path
	log.Printf("Logs will be written to '%s'.", c.LogPath)
	return nil
}

func (c *Config) processConfigLogCycleInterval() error {
	if c.LogCycle.Duration == 0 {
		return fmt.Errorf("log-cycle-interval setting empty")
	}
	log.Printf("Will cycle logs every %v (log-cycle-interval).", c.LogCycle.Duration)

	logDir, _ := filepath.Split(c.LogPath)
	log.Printf("All further status messages will be written to log file(s) in '%s'.", logDir)
	logFileCycler(c.LogPath, c.LogCycle.Duration)
	log.Print("Server starting.")

	return nil
}

func (c *Config) processDbConnectString() error {
	if c.env.DbConnect != "" {
		c.DbConnectString = c.env.DbConnect
	}
	if c.DbConnectString == "" {
		log.Printf("db-connect-string empty, sessions will be kept in memory only.")
	}
	return nil
}

// processListenSpecs substitutes CHARTD_BIND for 0.0.0.0.
func (c *Config) processListenSpecs() error {
	specs := []*string{&c.HttpListenSpec, &c.TextListenSpec, &c.PickleListenSpec}
	for _, spec := range specs {
		if c.env.Bind != "" {
			*spec = strings.Replace(*spec, "0.0.0.0", c.env.Bind, 1)
		}
	}
	if c.HttpListenSpec == "" && c.TextListenSpec == "" && c.PickleListenSpec == "" {
		return fmt.Errorf("no listen-spec is set, there is no way to submit ticks")
	}
	return nil
}

func (c *Config) processReceiver() error {
	if c.MaxCachedSessions < 0 {
		return fmt.Errorf("max-cached-sessions must not be negative")
	}
	if c.MaxCachedSessions == 0 {
		c.MaxCachedSessions = 1024
	}
	log.Printf("Up to %d sessions will be cached (max-cached-sessions).", c.MaxCachedSessions)

	if c.FlushInterval.Duration == 0 {
		c.FlushInterval.Duration = time.Minute
	}
	log.Printf("Dirty sessions will be flushed every %v (flush-interval).", c.FlushInterval.Duration)

	if c.MaxFlushesPerSecond <= 0 {
		log.Printf("max-flushes-per-second unspecified, flushes are not rate limited.")
	}

	if c.MaxGapFill < 0 {
		return fmt.Errorf("max-gap-fill must not be negative")
	}
	if c.MaxGapFill == 0 {
		c.MaxGapFill = rrd.Base
	}
	log.Printf("Gaps of up to %d ticks will be padded with zeros (max-gap-fill).", c.MaxGapFill)

	if c.TickDuration.Duration == 0 {
		c.TickDuration.Duration = session.DefaultTickDuration
	}
	if c.TickDuration.Duration < time.Second {
		return fmt.Errorf("tick-duration too small: %v", c.TickDuration.Duration)
	}
	return nil
}

func (c *Config) processCategories() error {
	for i, cat := range c.Categories {
		cat = misc.SanitizeName(cat)
		if len(session.Subcategories(cat)) == 0 {
			return fmt.Errorf("unknown category: %q", c.Categories[i])
		}
		c.Categories[i] = cat
	}
	if len(c.Categories) == 0 {
		log.Printf("categories empty, all categories are accepted.")
	}
	return nil
}

func (c *Config) processBlaster() error {
	if !c.Blaster.Enabled {
		return nil
	}
	if c.Blaster.Players < 0 || c.Blaster.Rate < 0 {
		return fmt.Errorf("blaster players and rate must not be negative")
	}
	log.Printf("Blaster enabled: %d players, %d ticks per second.", c.Blaster.Players, c.Blaster.Rate)
	return nil
}

func (c *Config) categorySet() map[string]bool {
	if len(c.Categories) == 0 {
		return nil
	}
	m := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		m[cat] = true
	}
	return m
}

type configer interface {
	processConfigPidFile(string) error
	processConfigLogFile(string) error
	processConfigLogCycleInterval() error
	processDbConnectString() error
	processListenSpecs() error
	processReceiver() error
	processCategories() error
	processBlaster() error
}

var processConfig = func(c configer, wd string) error {

	if err := c.processConfigPidFile(wd); err != nil {
		return err
	}
	if err := c.processConfigLogFile(wd); err != nil {
		return err
	}
	if err := c.processConfigLogCycleInterval(); err != nil {
		return err
	}
	if err := c.processDbConnectString(); err != nil {
		return err
	}
	if err := c.processListenSpecs(); err != nil {
		return err
	}
	if err := c.processReceiver(); err != nil {
		return err
	}
	if err := c.processCategories(); err != nil {
		return err
	}
	if err := c.processBlaster(); err != nil {
		return err
	}
	return nil
}
