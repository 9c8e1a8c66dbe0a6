// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package database

// Referential integrity is checked inside the writing transaction rather
// than with FOREIGN KEY clauses; DuckDB rejects updates to any row of a
// referenced table while the reference exists.

const schemaSubscribers = `
CREATE SEQUENCE IF NOT EXISTS subscribers_id_seq START 1;
CREATE TABLE IF NOT EXISTS subscribers (
	id BIGINT PRIMARY KEY DEFAULT nextval('subscribers_id_seq'),
	username VARCHAR NOT NULL UNIQUE,
	display_name VARCHAR NOT NULL DEFAULT '',
	avatar_url VARCHAR NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL
);
`

const schemaRooms = `
CREATE SEQUENCE IF NOT EXISTS rooms_id_seq START 1;
CREATE TABLE IF NOT EXISTS rooms (
	id BIGINT PRIMARY KEY DEFAULT nextval('rooms_id_seq'),
	name VARCHAR NOT NULL,
	kind VARCHAR NOT NULL DEFAULT 'group',
	created_by BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS room_members (
	room_id BIGINT NOT NULL,
	subscriber_id BIGINT NOT NULL,
	role VARCHAR NOT NULL DEFAULT 'member',
	unread_count INTEGER NOT NULL DEFAULT 0,
	last_read_at TIMESTAMP,
	joined_at TIMESTAMP NOT NULL,
	PRIMARY KEY (room_id, subscriber_id)
);
`

const schemaMessages = `
CREATE SEQUENCE IF NOT EXISTS messages_id_seq START 1;
CREATE TABLE IF NOT EXISTS messages (
	id BIGINT PRIMARY KEY DEFAULT nextval('messages_id_seq'),
	room_id BIGINT NOT NULL,
	sender_id BIGINT NOT NULL,
	content VARCHAR NOT NULL,
	message_type VARCHAR NOT NULL DEFAULT 'text',
	reply_to BIGINT,
	created_at TIMESTAMP NOT NULL,
	deleted_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);
CREATE TABLE IF NOT EXISTS message_reads (
	message_id BIGINT NOT NULL,
	subscriber_id BIGINT NOT NULL,
	read_at TIMESTAMP NOT NULL,
	PRIMARY KEY (message_id, subscriber_id)
);
`

const schemaNotifications = `
CREATE SEQUENCE IF NOT EXISTS notifications_id_seq START 1;
CREATE TABLE IF NOT EXISTS notifications (
	id BIGINT PRIMARY KEY,
	recipient_id BIGINT NOT NULL,
	actor_id BIGINT,
	kind VARCHAR NOT NULL,
	title VARCHAR NOT NULL,
	body VARCHAR NOT NULL DEFAULT '',
	extra VARCHAR NOT NULL DEFAULT '{}',
	dedup_key VARCHAR,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	read_at TIMESTAMP,
	UNIQUE (recipient_id, dedup_key)
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created ON notifications (recipient_id, created_at);
`

const schemaBroadcasts = `
CREATE SEQUENCE IF NOT EXISTS scheduled_broadcasts_id_seq START 1;
CREATE TABLE IF NOT EXISTS scheduled_broadcasts (
	id BIGINT PRIMARY KEY DEFAULT nextval('scheduled_broadcasts_id_seq'),
	name VARCHAR NOT NULL,
	actor_id BIGINT NOT NULL,
	title VARCHAR NOT NULL,
	body VARCHAR NOT NULL DEFAULT '',
	cron_expr VARCHAR NOT NULL,
	timezone VARCHAR NOT NULL DEFAULT 'UTC',
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	next_run_at TIMESTAMP,
	last_run_at TIMESTAMP,
	last_status VARCHAR NOT NULL DEFAULT '',
	run_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
`
