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

// Pck_import loads per-player chart histories pickled by the game
// server and stores them as chartd sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/energetica/chartd/misc"
	"github.com/energetica/chartd/serde"
)

var (
	totalPlayers, totalSeries, totalErrors int
)

func main() {

	var (
		root, dbConnect, prefix string
		tick                    int64
		dryRun                  bool
	)

	flag.StringVar(&root, "root", "instance/player_data/", "location of the .pck files to be imported")
	flag.StringVar(&dbConnect, "dbconnect", "host=/var/run/postgresql dbname=chartd sslmode=disable", "db connect string")
	flag.StringVar(&prefix, "prefix", os.Getenv("CHARTD_DB_PREFIX"), "table name prefix")
	flag.Int64Var(&tick, "tick", 0, "tick count of the game at the time the files were written")
	flag.BoolVar(&dryRun, "n", false, "parse the files but do not store anything")

	flag.Parse()

	if tick <= 0 {
		fmt.Printf("Warning: -tick not given, imported series will start at tick 0.\n")
	}

	var db serde.SerDe
	if dryRun {
		db = serde.NewMemSerDe()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		var err error
		db, err = serde.InitDb(ctx, dbConnect, prefix)
		cancel()
		if err != nil {
			fmt.Printf("Error connecting to database: %v\n", err)
			os.Exit(1)
		}
	}
	defer db.Close()

	filepath.Walk(
		root,
		func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() || !strings.HasSuffix(path, ".pck") {
				return nil
			}

			player := playerFromPath(path)
			fmt.Printf("Processing: %v (player %q)\n", path, player)

			n, err := importFile(context.Background(), db, path, player, tick)
			if err != nil {
				fmt.Printf("Skipping %v due to error: %v\n", path, err)
				totalErrors++
				return nil
			}
			totalPlayers++
			totalSeries += n
			return nil
		},
	)

	fmt.Printf("DONE: GRAND TOTAL %d series across %d players, %d files skipped.\n", totalSeries, totalPlayers, totalErrors)
}

// playerFromPath maps instance/player_data/player_12.pck to player_12.
func playerFromPath(path string) string {
	return misc.SanitizeName(strings.TrimSuffix(filepath.Base(path), ".pck"))
}
