package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/chronoplan/store"
)

const eventColumns = `id, uid, creator_id, created_ts, updated_ts, row_status,
	title, description, location, color, type,
	start_ts, end_ts, all_day, timezone,
	is_recurring, recurrence_pattern, recurrence_end_ts,
	google_event_id, is_synced`

func (d *DB) CreateEvent(ctx context.Context, create *store.Event) (*store.Event, error) {
	fields := []string{
		"uid", "creator_id", "title", "description", "location", "color", "type",
		"start_ts", "end_ts", "all_day", "timezone",
		"is_recurring", "recurrence_pattern", "recurrence_end_ts",
		"google_event_id", "is_synced",
	}
	args := []any{
		create.UID, create.CreatorID, create.Title, create.Description, create.Location, create.Color, create.Type,
		create.StartTs, create.EndTs, create.AllDay, create.Timezone,
		create.IsRecurring, create.RecurrencePattern, create.RecurrenceEndTs,
		create.GoogleEventID, create.IsSynced,
	}

	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		args = append(args, create.CreatedTs)
	}
	if create.UpdatedTs != 0 {
		fields = append(fields, "updated_ts")
		args = append(args, create.UpdatedTs)
	}

	stmt := `INSERT INTO calendar_event (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id, created_ts, updated_ts, row_status`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
		&create.RowStatus,
	); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return create, nil
}

func (d *DB) ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.CreatorID; v != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.RowStatus; v != nil {
		where, args = append(where, "row_status = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Title; v != nil {
		where, args = append(where, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.IsRecurring; v != nil {
		where, args = append(where, "is_recurring = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.IsSynced; v != nil {
		where, args = append(where, "is_synced = "+placeholder(len(args)+1)), append(args, *v)
	}
	// Overlap with [StartTs, EndTs): the event starts before the window ends and ends after it starts.
	if v := find.EndTs; v != nil {
		where, args = append(where, "start_ts < "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.StartTs; v != nil {
		where, args = append(where, "end_ts > "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT ` + eventColumns + `
		FROM calendar_event
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY start_ts ASC, id ASC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
		if find.Offset != nil {
			query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Event, 0)
	for rows.Next() {
		var event store.Event
		var recurrenceEndTs sql.NullInt64
		var googleEventID sql.NullString
		if err := rows.Scan(
			&event.ID,
			&event.UID,
			&event.CreatorID,
			&event.CreatedTs,
			&event.UpdatedTs,
			&event.RowStatus,
			&event.Title,
			&event.Description,
			&event.Location,
			&event.Color,
			&event.Type,
			&event.StartTs,
			&event.EndTs,
			&event.AllDay,
			&event.Timezone,
			&event.IsRecurring,
			&event.RecurrencePattern,
			&recurrenceEndTs,
			&googleEventID,
			&event.IsSynced,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if recurrenceEndTs.Valid {
			event.RecurrenceEndTs = &recurrenceEndTs.Int64
		}
		if googleEventID.Valid {
			event.GoogleEventID = &googleEventID.String
		}
		list = append(list, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateEvent(ctx context.Context, update *store.UpdateEvent) error {
	set, args := []string{}, []any{}

	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.RowStatus; v != nil {
		set, args = append(set, "row_status = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Description; v != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Location; v != nil {
		set, args = append(set, "location = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Color; v != nil {
		set, args = append(set, "color = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Type; v != nil {
		set, args = append(set, "type = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.StartTs; v != nil {
		set, args = append(set, "start_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.EndTs; v != nil {
		set, args = append(set, "end_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.AllDay; v != nil {
		set, args = append(set, "all_day = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Timezone; v != nil {
		set, args = append(set, "timezone = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.IsRecurring; v != nil {
		set, args = append(set, "is_recurring = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.RecurrencePattern; v != nil {
		set, args = append(set, "recurrence_pattern = "+placeholder(len(args)+1)), append(args, *v)
	}
	if update.ClearRecurrenceEnd {
		set = append(set, "recurrence_end_ts = NULL")
	} else if v := update.RecurrenceEndTs; v != nil {
		set, args = append(set, "recurrence_end_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.GoogleEventID; v != nil {
		set, args = append(set, "google_event_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.IsSynced; v != nil {
		set, args = append(set, "is_synced = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE calendar_event SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if v := update.ExpectedUpdatedTs; v != nil {
		args = append(args, *v)
		stmt += ` AND updated_ts = ` + placeholder(len(args))
	}
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if update.ExpectedUpdatedTs != nil {
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return store.ErrEventChanged
		}
	}
	return nil
}

func (d *DB) DeleteEvent(ctx context.Context, delete *store.DeleteEvent) error {
	stmt := `DELETE FROM calendar_event WHERE id = ` + placeholder(1)
	result, err := d.db.ExecContext(ctx, stmt, delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	return nil
}
