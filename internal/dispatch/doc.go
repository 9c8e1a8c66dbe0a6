// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package dispatch turns domain actions into durable records and room events.
//
// Every operation follows the same sequence: validate the input, persist
// transactionally, build the frame payload, then publish. A persistence
// error aborts the action and is returned. A publish error never rolls back
// the record and never fails the action; it is logged, counted, and reported
// in the returned Delivery so callers can observe that the real-time push was
// lost while the record stays readable through the REST path.
//
// There are no hooks or signals. REST handlers, the connection handler and
// the scheduler call the Dispatcher explicitly:
//
//	msg, d, err := dispatcher.SendChatMessage(ctx, dispatch.ChatMessageInput{
//		RoomID:   roomID,
//		SenderID: claims.SubscriberID,
//		Content:  "hello",
//	})
//	if err != nil {
//		return err // nothing was stored
//	}
//	if d.PushErr != nil {
//		// stored, but live connections did not get it
//	}
package dispatch
