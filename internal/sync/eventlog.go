package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db, siteID: "local"} }

// Append records one domain event; data is stored as JSON.
func (r *EventRepo) Append(ctx context.Context, typ, key string, data any) error {
	if data == nil {
		data = map[string]any{}
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, typ, key, string(buf), time.Now().Unix())
	return err
}

// Recent returns the newest events first, optionally filtered by type.
func (r *EventRepo) Recent(ctx context.Context, typ string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if typ == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT seq, site_id, typ, key, data, created_at FROM event_log ORDER BY seq DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE typ=$1 ORDER BY seq DESC LIMIT $2`, typ, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		var data string
		var created int64
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &created); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
