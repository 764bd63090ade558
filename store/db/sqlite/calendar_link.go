package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/chronoplan/store"
)

func (d *DB) UpsertCalendarLink(ctx context.Context, upsert *store.CalendarLink) (*store.CalendarLink, error) {
	stmt := `INSERT INTO calendar_link (user_id, provider, calendar_id, access_token, refresh_token, expiry_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry_ts = excluded.expiry_ts,
			updated_ts = strftime('%s', 'now')
		RETURNING updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID, upsert.Provider, upsert.CalendarID, upsert.AccessToken, upsert.RefreshToken, upsert.ExpiryTs,
	).Scan(&upsert.UpdatedTs); err != nil {
		return nil, fmt.Errorf("failed to upsert calendar link: %w", err)
	}
	return upsert, nil
}

func (d *DB) ListCalendarLinks(ctx context.Context, find *store.FindCalendarLink) ([]*store.CalendarLink, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Provider; v != nil {
		where, args = append(where, "provider = "+placeholder(len(args)+1)), append(args, *v)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT user_id, provider, calendar_id, access_token, refresh_token, expiry_ts, updated_ts
		FROM calendar_link
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY user_id ASC, provider ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar links: %w", err)
	}
	defer rows.Close()

	list := make([]*store.CalendarLink, 0)
	for rows.Next() {
		var link store.CalendarLink
		if err := rows.Scan(&link.UserID, &link.Provider, &link.CalendarID, &link.AccessToken, &link.RefreshToken, &link.ExpiryTs, &link.UpdatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan calendar link: %w", err)
		}
		list = append(list, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calendar links: %w", err)
	}
	return list, nil
}
