package postgres

const (
	qInsertRoom = `
		INSERT INTO roulette_rooms (id, status, round, round_id, total_stake_units, phase_changed_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	qSelectRoom = `
		SELECT id, status, round, round_id, countdown_end_time, winner_id,
		       total_stake_units::text, total_contribution_count,
		       phase_changed_at, version, created_at, updated_at
		FROM roulette_rooms
		WHERE id = $1`

	qUpdateRoom = `
		UPDATE roulette_rooms
		SET status = $2, round = $3, round_id = $4, countdown_end_time = $5, winner_id = $6,
		    total_stake_units = $7::numeric, total_contribution_count = $8,
		    phase_changed_at = $9, version = $10, updated_at = $11
		WHERE id = $1`

	qPendingRooms = `
		SELECT id FROM roulette_rooms
		WHERE status = ANY($1::text[])
		ORDER BY id`

	qSelectParticipants = `
		SELECT room_id, player_id, display_name, avatar_url, stake_units::text, contribution_count,
		       join_seq, color_index, joined_at, updated_at
		FROM roulette_participants
		WHERE room_id = $1
		ORDER BY join_seq ASC`

	qDeleteParticipants = `DELETE FROM roulette_participants WHERE room_id = $1`

	qInsertParticipant = `
		INSERT INTO roulette_participants
		    (room_id, player_id, display_name, avatar_url, stake_units, contribution_count,
		     join_seq, color_index, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)`

	qTouchPresence = `
		INSERT INTO roulette_presence (room_id, player_id, display_name, avatar_url, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, player_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    avatar_url   = EXCLUDED.avatar_url,
		    last_seen_at = GREATEST(roulette_presence.last_seen_at, EXCLUDED.last_seen_at)`

	qListPresence = `
		SELECT room_id, player_id, display_name, avatar_url, last_seen_at
		FROM roulette_presence
		WHERE room_id = $1 AND last_seen_at > $2
		ORDER BY last_seen_at DESC, player_id ASC`
)
