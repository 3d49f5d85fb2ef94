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

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/energetica/chartd/rrd"
	"github.com/energetica/chartd/serde"
)

// Protocol 0: {"revenues": {"industry": [[1.5, 2], [], [], [], []]}}
const testHistory = "(dS'revenues'\n(dS'industry'\n((F1.5\nI2\nl(l(l(l(llss."

func Test_loadHistory(t *testing.T) {
	states, err := loadHistory(strings.NewReader(testHistory), 100)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := states["revenues.industry"]
	if !ok || len(states) != 1 {
		t.Fatalf("states = %v", states)
	}
	if st.TickCount != 100 || len(st.Levels) != rrd.NumLevels {
		t.Errorf("tick %d, %d levels", st.TickCount, len(st.Levels))
	}
	l0 := st.Levels[0]
	if l0[rrd.LevelSize-2] != 1.5 || l0[rrd.LevelSize-1] != 2 || l0[0] != 0 {
		t.Errorf("level 0 tail = %v", l0[rrd.LevelSize-3:])
	}

	bad := "(dS'revenues'\n(dS'industry'\n((l(l(l(llss."
	if _, err := loadHistory(strings.NewReader(bad), 100); err == nil {
		t.Errorf("four levels should be an error")
	}
	if _, err := loadHistory(strings.NewReader("(lp0\n."), 100); err == nil {
		t.Errorf("a list is not a history")
	}
}

func Test_fitLevel(t *testing.T) {
	vals := make([]interface{}, rrd.LevelSize+40)
	for i := range vals {
		vals[i] = int64(i)
	}
	level, err := fitLevel(vals)
	if err != nil {
		t.Fatal(err)
	}
	if len(level) != rrd.LevelSize || level[0] != 40 || level[rrd.LevelSize-1] != float64(rrd.LevelSize+39) {
		t.Errorf("level[0] = %v, level[last] = %v", level[0], level[rrd.LevelSize-1])
	}
	if _, err := fitLevel([]interface{}{"x"}); err == nil {
		t.Errorf("a string is not a value")
	}
}

func Test_importFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "player_12.pck")
	if err := os.WriteFile(path, []byte(testHistory), 0644); err != nil {
		t.Fatal(err)
	}
	player := playerFromPath(path)
	if player != "player_12" {
		t.Errorf("playerFromPath() = %q", player)
	}

	db := serde.NewMemSerDe()
	n, err := importFile(context.Background(), db, path, player, 7)
	if err != nil || n != 1 {
		t.Fatalf("importFile() = %d, %v", n, err)
	}
	states, err := db.FetchSession(context.Background(), player)
	if err != nil {
		t.Fatal(err)
	}
	if states["revenues.industry"].TickCount != 7 {
		t.Errorf("stored %+v", states)
	}

	if _, err := importFile(context.Background(), db, filepath.Join(dir, "missing.pck"), "x", 7); err == nil {
		t.Errorf("missing file should be an error")
	}
}
