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

package serde

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/energetica/chartd/rrd"
	"github.com/lib/pq"
)

type pgSerDe struct {
	dbConn     *sql.DB
	sql1, sql2 *sql.Stmt
	table      string
}

var sqlOpen = func(driver, connect string) (*sql.DB, error) {
	return sql.Open(driver, connect)
}

// InitDb connects to PostgreSQL, creates the tables (names prefixed
// with prefix) if needed and prepares the statements.
func InitDb(ctx context.Context, connectString, prefix string) (SerDe, error) {
	dbConn, err := sqlOpen("postgres", connectString)
	if err != nil {
		return nil, err
	}
	p := &pgSerDe{dbConn: dbConn, table: pq.QuoteIdentifier(prefix + "series")}
	if err := p.dbConn.PingContext(ctx); err != nil {
		dbConn.Close()
		return nil, err
	}
	if err := p.createTablesIfNotExist(ctx); err != nil {
		dbConn.Close()
		return nil, err
	}
	if err := p.prepareSqlStatements(ctx); err != nil {
		dbConn.Close()
		return nil, err
	}
	return p, nil
}

func (p *pgSerDe) prepareSqlStatements(ctx context.Context) error {
	var err error
	if p.sql1, err = p.dbConn.PrepareContext(ctx, fmt.Sprintf(
		"SELECT metric, level, tick, dp FROM %[1]s WHERE player = $1 ORDER BY metric, level", p.table)); err != nil {
		return err
	}
	if p.sql2, err = p.dbConn.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %[1]s (player, metric, level, tick, dp) VALUES ($1, $2, $3, $4, $5) "+
			"ON CONFLICT (player, metric, level) DO UPDATE SET tick = EXCLUDED.tick, dp = EXCLUDED.dp, updated = now()",
		p.table)); err != nil {
		return err
	}
	return nil
}

func (p *pgSerDe) createTablesIfNotExist(ctx context.Context) error {
	create_sql := `
       CREATE TABLE IF NOT EXISTS %[1]s (
       player TEXT NOT NULL,
       metric TEXT NOT NULL,
       level INT NOT NULL,
       tick BIGINT NOT NULL,
       dp DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
       updated TIMESTAMPTZ NOT NULL DEFAULT now(),
       PRIMARY KEY (player, metric, level));
    `
	if _, err := p.dbConn.ExecContext(ctx, fmt.Sprintf(create_sql, p.table)); err != nil {
		log.Printf("ERROR: initial CREATE TABLE failed: %v", err)
		return err
	}
	return nil
}

func (p *pgSerDe) FetchSession(ctx context.Context, player string) (map[string]rrd.SeriesState, error) {
	rows, err := p.sql1.QueryContext(ctx, player)
	if err != nil {
		return nil, fmt.Errorf("FetchSession(%s): %w", player, err)
	}
	defer rows.Close()

	var result []levelRow
	for rows.Next() {
		var row levelRow
		if err := rows.Scan(&row.metric, &row.level, &row.tick, pq.Array(&row.dp)); err != nil {
			return nil, fmt.Errorf("FetchSession(%s): %w", player, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FetchSession(%s): %w", player, err)
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return assemble(result)
}

func (p *pgSerDe) FlushSession(ctx context.Context, player string, states map[string]rrd.SeriesState) (err error) {
	tx, err := p.dbConn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt := tx.StmtContext(ctx, p.sql2)
	for _, row := range flatten(states) {
		if _, err = stmt.ExecContext(ctx, player, row.metric, row.level, row.tick, pq.Array(row.dp)); err != nil {
			return fmt.Errorf("FlushSession(%s): %s level %d: %w", player, row.metric, row.level, err)
		}
	}
	return tx.Commit()
}

func (p *pgSerDe) Close() error {
	return p.dbConn.Close()
}
