package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type UserLevel struct {
	GuildID     string
	UserID      string
	XP          int
	Level       int
	Messages    int
	LastMessage time.Time
}

func (s *Store) GetUserLevel(ctx context.Context, guildID, userID string) (UserLevel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT xp, level, messages, last_message
		FROM user_levels WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)

	rec := UserLevel{GuildID: guildID, UserID: userID, Level: 1}
	var lastMessage int64
	err := row.Scan(&rec.XP, &rec.Level, &rec.Messages, &lastMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, nil
		}
		return UserLevel{}, err
	}
	if lastMessage > 0 {
		rec.LastMessage = time.Unix(lastMessage, 0)
	}
	return rec, nil
}

func (s *Store) UpsertUserLevel(ctx context.Context, rec UserLevel) error {
	var lastMessage int64
	if !rec.LastMessage.IsZero() {
		lastMessage = rec.LastMessage.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_levels (guild_id, user_id, xp, level, messages, last_message)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			xp = excluded.xp,
			level = excluded.level,
			messages = excluded.messages,
			last_message = excluded.last_message
	`, rec.GuildID, rec.UserID, rec.XP, rec.Level, rec.Messages, lastMessage)
	return err
}

func (s *Store) TopUserLevels(ctx context.Context, guildID string, limit int) ([]UserLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, xp, level, messages, last_message
		FROM user_levels WHERE guild_id = ?
		ORDER BY xp DESC LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []UserLevel
	for rows.Next() {
		rec := UserLevel{GuildID: guildID}
		var lastMessage int64
		if err := rows.Scan(&rec.UserID, &rec.XP, &rec.Level, &rec.Messages, &lastMessage); err != nil {
			return nil, err
		}
		if lastMessage > 0 {
			rec.LastMessage = time.Unix(lastMessage, 0)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
