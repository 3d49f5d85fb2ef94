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

// Package misc is misc stuff.
package misc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	sanitizeRegexSpace    = regexp.MustCompile(`\s+`)
	sanitizeRegexSlash    = regexp.MustCompile(`/`)
	sanitizeRegexNonIdent = regexp.MustCompile(`[^a-zA-Z_\-0-9&]`)
)

// SanitizeName turns a name into something usable as a single
// component of a metric key: whitespace becomes "_", slashes become
// "-" and anything else that is not a letter, digit, "_", "-" or "&"
// is dropped. Dots are dropped too, since they separate components.
func SanitizeName(name string) string {
	name = sanitizeRegexSpace.ReplaceAllString(strings.TrimSpace(name), "_")
	name = sanitizeRegexSlash.ReplaceAllString(name, "-")
	return sanitizeRegexNonIdent.ReplaceAllString(name, "")
}

// BetterParseDuration is time.ParseDuration which also understands
// "min", "hour", "d" (days), "w" (weeks), "mon" (30 days) and "y"
// (365 days). The day-based units only work as a single integer
// term, e.g. "6d", not "6d12h".
func BetterParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "min"):
		s = s[:len(s)-2] // min -> m
	case strings.HasSuffix(s, "hour"):
		s = s[:len(s)-3] // hour -> h
	case strings.HasSuffix(s, "mon"):
		n, err := strconv.ParseFloat(s[:len(s)-3], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %v", s, err)
		}
		return time.Duration(n * 30 * 24 * float64(time.Hour)), nil
	}

	for suffix, unit := range map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
		"y": 365 * 24 * time.Hour,
	} {
		if strings.HasSuffix(s, suffix) {
			n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %v", s, err)
			}
			return time.Duration(n) * unit, nil
		}
	}

	return time.ParseDuration(s)
}
