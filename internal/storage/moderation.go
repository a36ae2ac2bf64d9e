package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Warning struct {
	ID        string
	GuildID   string
	UserID    string
	Reason    string
	Moderator string
	CreatedAt time.Time
}

type Punishment struct {
	GuildID string
	UserID  string
	Kind    string
	Until   time.Time
	Reason  string
}

func (s *Store) AddWarning(ctx context.Context, warning Warning) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warnings (id, guild_id, user_id, reason, moderator, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, warning.ID, warning.GuildID, warning.UserID, warning.Reason, warning.Moderator, warning.CreatedAt.Unix())
	return err
}

func (s *Store) ListWarnings(ctx context.Context, guildID, userID string) ([]Warning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, reason, moderator, created_at
		FROM warnings WHERE guild_id = ? AND user_id = ?
		ORDER BY created_at
	`, guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []Warning
	for rows.Next() {
		var warning Warning
		var created int64
		if err := rows.Scan(&warning.ID, &warning.GuildID, &warning.UserID, &warning.Reason, &warning.Moderator, &created); err != nil {
			return nil, err
		}
		warning.CreatedAt = time.Unix(created, 0)
		warnings = append(warnings, warning)
	}
	return warnings, rows.Err()
}

func (s *Store) CountWarnings(ctx context.Context, guildID, userID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM warnings WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) DeleteWarning(ctx context.Context, guildID, warningID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM warnings WHERE guild_id = ? AND id = ?
	`, guildID, warningID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ClearWarnings(ctx context.Context, guildID, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM warnings WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) UpsertPunishment(ctx context.Context, punishment Punishment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO punishments (guild_id, user_id, kind, until, reason)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id, kind) DO UPDATE SET
			until = excluded.until,
			reason = excluded.reason
	`, punishment.GuildID, punishment.UserID, punishment.Kind, punishment.Until.Unix(), punishment.Reason)
	return err
}

func (s *Store) GetPunishment(ctx context.Context, guildID, userID, kind string) (Punishment, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, kind, until, reason
		FROM punishments WHERE guild_id = ? AND user_id = ? AND kind = ?
	`, guildID, userID, kind)
	var punishment Punishment
	var until int64
	err := row.Scan(&punishment.GuildID, &punishment.UserID, &punishment.Kind, &until, &punishment.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Punishment{}, false, nil
		}
		return Punishment{}, false, err
	}
	punishment.Until = time.Unix(until, 0)
	return punishment, true, nil
}

func (s *Store) DeletePunishment(ctx context.Context, guildID, userID, kind string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM punishments WHERE guild_id = ? AND user_id = ? AND kind = ?
	`, guildID, userID, kind)
	return err
}

func (s *Store) ListPunishments(ctx context.Context) ([]Punishment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, user_id, kind, until, reason FROM punishments ORDER BY until
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var punishments []Punishment
	for rows.Next() {
		var punishment Punishment
		var until int64
		if err := rows.Scan(&punishment.GuildID, &punishment.UserID, &punishment.Kind, &until, &punishment.Reason); err != nil {
			return nil, err
		}
		punishment.Until = time.Unix(until, 0)
		punishments = append(punishments, punishment)
	}
	return punishments, rows.Err()
}
