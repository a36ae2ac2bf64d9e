package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type GiveawayRecord struct {
	ID              string
	ChannelID       string
	GuildID         string
	Prize           string
	WinnerCount     int
	Host            string
	EndsAt          time.Time
	RequiredRole    string
	BlacklistedRole string
	RiggedWinner    string
	MinMessages     int
	Ended           bool
}

func (s *Store) UpsertGiveaway(ctx context.Context, rec GiveawayRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO giveaways (
			id, channel_id, guild_id, prize, winner_count, host, ends_at,
			required_role, blacklisted_role, rigged_winner, min_messages, ended
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id,
			guild_id = excluded.guild_id,
			prize = excluded.prize,
			winner_count = excluded.winner_count,
			host = excluded.host,
			ends_at = excluded.ends_at,
			required_role = excluded.required_role,
			blacklisted_role = excluded.blacklisted_role,
			rigged_winner = excluded.rigged_winner,
			min_messages = excluded.min_messages,
			ended = excluded.ended
	`,
		rec.ID,
		rec.ChannelID,
		rec.GuildID,
		rec.Prize,
		rec.WinnerCount,
		rec.Host,
		rec.EndsAt.UTC().Format(time.RFC3339),
		rec.RequiredRole,
		rec.BlacklistedRole,
		rec.RiggedWinner,
		rec.MinMessages,
		boolToInt(rec.Ended),
	)
	return err
}

func (s *Store) GetGiveaway(ctx context.Context, id string) (GiveawayRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, guild_id, prize, winner_count, host, ends_at,
		required_role, blacklisted_role, rigged_winner, min_messages, ended
		FROM giveaways WHERE id = ?`, id)
	return scanGiveaway(row.Scan)
}

func (s *Store) LoadActiveGiveaways(ctx context.Context) ([]GiveawayRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, guild_id, prize, winner_count, host, ends_at,
		required_role, blacklisted_role, rigged_winner, min_messages, ended
		FROM giveaways WHERE ended = 0 ORDER BY ends_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []GiveawayRecord
	for rows.Next() {
		rec, err := scanGiveaway(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) CleanupEndedGiveaways(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `DELETE FROM giveaways WHERE ended = 1 AND ends_at < ?`, cutoff)
	return err
}

func scanGiveaway(scan func(dest ...any) error) (GiveawayRecord, error) {
	var rec GiveawayRecord
	var endsAt string
	var ended int
	err := scan(
		&rec.ID,
		&rec.ChannelID,
		&rec.GuildID,
		&rec.Prize,
		&rec.WinnerCount,
		&rec.Host,
		&endsAt,
		&rec.RequiredRole,
		&rec.BlacklistedRole,
		&rec.RiggedWinner,
		&rec.MinMessages,
		&ended,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GiveawayRecord{}, sql.ErrNoRows
		}
		return GiveawayRecord{}, err
	}
	rec.Ended = ended == 1
	parsed, err := time.Parse(time.RFC3339, endsAt)
	if err != nil {
		return GiveawayRecord{}, err
	}
	rec.EndsAt = parsed
	return rec, nil
}
