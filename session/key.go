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

package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/energetica/chartd/misc"
)

var ErrBadKey = errors.New("metric key must be category.subcategory")

// MetricKey identifies one series of a player, e.g. revenues.industry.
type MetricKey struct {
	Category    string
	Subcategory string
}

func (k MetricKey) String() string {
	return k.Category + "." + k.Subcategory
}

// NewMetricKey returns a key with both parts sanitized.
func NewMetricKey(category, subcategory string) (MetricKey, error) {
	k := MetricKey{misc.SanitizeName(category), misc.SanitizeName(subcategory)}
	if k.Category == "" || k.Subcategory == "" {
		return MetricKey{}, fmt.Errorf("%q, %q: %w", category, subcategory, ErrBadKey)
	}
	return k, nil
}

// ParseMetricKey parses the textual category.subcategory form. Only
// the first dot separates the parts.
func ParseMetricKey(s string) (MetricKey, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return MetricKey{}, fmt.Errorf("%q: %w", s, ErrBadKey)
	}
	return NewMetricKey(parts[0], parts[1])
}

var storages = []string{
	"small_pumped_hydro",
	"large_pumped_hydro",
	"lithium_ion_batteries",
	"solid_state_batteries",
	"molten_salt",
	"hydrogen_storage",
}

// stacking order of the subcategories of known categories
var order = map[string][]string{
	"revenues": {"industry", "imports", "exports", "dumping"},
	"op_costs": {"steam_engine"},
	"generation": append([]string{
		"watermill",
		"small_water_dam",
		"large_water_dam",
		"nuclear_reactor",
		"nuclear_reactor_gen4",
		"steam_engine",
		"coal_burner",
		"gas_burner",
		"combined_cycle",
		"windmill",
		"onshore_wind_turbine",
		"offshore_wind_turbine",
		"CSP_solar",
		"PV_solar",
	}, storages...),
	"demand": append([]string{
		"coal_mine",
		"gas_drilling_site",
		"uranium_mine",
		"research",
		"construction",
		"transport",
		"industry",
		"exports",
		"dumping",
	}, storages...),
	"emissions": {
		"carbon_capture",
		"steam_engine",
		"coal_burner",
		"oil_burner",
		"gas_burner",
		"combined_cycle",
		"nuclear_reactor",
		"nuclear_reactor_gen4",
		"construction",
		"coal_mine",
		"oil_field",
		"gas_drilling_site",
		"uranium_mine",
	},
	"storage": storages,
}

// Subcategories returns the stacking order of a category, nil for a
// category without a predefined order.
func Subcategories(category string) []string {
	return order[category]
}
