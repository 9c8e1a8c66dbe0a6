// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/switchboard/internal/auth"
	"github.com/tomtom215/switchboard/internal/database"
	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/models"
)

// CreateRoomRequest is the body of POST /api/v1/rooms.
type CreateRoomRequest struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Kind      string  `json:"kind,omitempty" validate:"omitempty,oneof=group direct"`
	MemberIDs []int64 `json:"member_ids,omitempty" validate:"max=500,dive,gt=0"`

	// CreatedBy is honoured for service callers only; subscribers always own
	// the rooms they create.
	CreatedBy int64 `json:"created_by,omitempty" validate:"gte=0"`
}

// AddMemberRequest is the body of POST /api/v1/rooms/{room_id}/members.
type AddMemberRequest struct {
	SubscriberID int64  `json:"subscriber_id" validate:"required,gt=0"`
	Role         string `json:"role,omitempty" validate:"omitempty,oneof=owner member"`
}

// SendMessageRequest is the body of POST /api/v1/rooms/{room_id}/messages.
type SendMessageRequest struct {
	Content     string `json:"content" validate:"max=16000"`
	MessageType string `json:"message_type,omitempty" validate:"omitempty,oneof=text image file"`
	ReplyTo     *int64 `json:"reply_to,omitempty" validate:"omitempty,gt=0"`
}

// roomResponse is returned by CreateRoom.
type roomResponse struct {
	Room    *models.Room        `json:"room"`
	Members []models.RoomMember `json:"members"`
}

// messageResponse is returned by SendMessage.
type messageResponse struct {
	Message  *models.Message  `json:"message"`
	Delivery deliveryResponse `json:"delivery"`
}

// canManageRoom reports whether the caller may change a room's membership:
// service principals and room owners.
func (h *Handler) canManageRoom(ctx context.Context, c *auth.Claims, roomID int64) (bool, error) {
	if c.HasRole(auth.RoleService) {
		return true, nil
	}
	member, err := h.db.GetMember(ctx, roomID, c.SubscriberID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.Role == models.MemberRoleOwner, nil
}

// canReadRoom reports whether the caller may read a room: service principals
// and members.
func (h *Handler) canReadRoom(ctx context.Context, c *auth.Claims, roomID int64) (bool, error) {
	if c.HasRole(auth.RoleService) {
		return true, nil
	}
	return h.db.IsMember(ctx, roomID, c.SubscriberID)
}

// CreateRoom creates a chat room owned by the caller.
//
// @Summary Create a chat room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param request body CreateRoomRequest true "Room definition"
// @Success 201 {object} APIResponse{data=roomResponse}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse "A member does not exist"
// @Security BearerAuth
// @Router /api/v1/rooms [post]
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreateRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(rw, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !validateRequest(rw, &req) {
		return
	}

	c := claims(r)
	owner := c.SubscriberID
	if c.HasRole(auth.RoleService) && req.CreatedBy > 0 {
		owner = req.CreatedBy
	}
	if owner <= 0 {
		rw.ValidationError("created_by is required for service callers", map[string]interface{}{"field": "created_by"})
		return
	}

	room := &models.Room{Name: req.Name, Kind: req.Kind, CreatedBy: owner}
	if err := h.db.CreateRoom(r.Context(), room, req.MemberIDs); err != nil {
		writeDomainError(rw, err)
		return
	}

	members, err := h.db.ListMembers(r.Context(), room.ID)
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("room_id", room.ID).
		Int64("owner", owner).
		Int("members", len(members)).
		Msg("Room created")

	rw.Created(roomResponse{Room: room, Members: members})
}

// ListRoomMembers returns a room's members with their unread counters.
//
// @Summary List room members
// @Tags Rooms
// @Produce json
// @Param room_id path int true "Room ID"
// @Success 200 {object} APIResponse{data=[]models.RoomMember}
// @Failure 403 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/rooms/{room_id}/members [get]
func (h *Handler) ListRoomMembers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	roomID, err := pathID(r, "room_id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	ok, err := h.canReadRoom(r.Context(), claims(r), roomID)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if !ok {
		rw.Forbidden("not a member of this room")
		return
	}

	members, err := h.db.ListMembers(r.Context(), roomID)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if members == nil {
		members = []models.RoomMember{}
	}
	rw.Success(members)
}

// AddRoomMember grants room membership. When a subscriber invites another
// subscriber, the invitee also receives a group_invite notification.
//
// @Summary Add a room member
// @Tags Rooms
// @Accept json
// @Produce json
// @Param room_id path int true "Room ID"
// @Param request body AddMemberRequest true "Member to add"
// @Success 201 {object} APIResponse "Member added"
// @Success 200 {object} APIResponse "Already a member"
// @Failure 403 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/rooms/{room_id}/members [post]
func (h *Handler) AddRoomMember(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	roomID, err := pathID(r, "room_id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	var req AddMemberRequest
	if !decodeAndValidate(rw, w, r, &req) {
		return
	}

	c := claims(r)
	ok, err := h.canManageRoom(r.Context(), c, roomID)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if !ok {
		rw.Forbidden("only room owners may add members")
		return
	}

	added, err := h.dispatcher.GrantMembership(r.Context(), roomID, req.SubscriberID, req.Role)
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	resp := map[string]interface{}{
		"room_id":       roomID,
		"subscriber_id": req.SubscriberID,
		"added":         added,
	}
	if !added {
		rw.Success(resp)
		return
	}

	if c.SubscriberID > 0 && c.SubscriberID != req.SubscriberID {
		invite, err := h.sendInvite(r.Context(), c.SubscriberID, req.SubscriberID, roomID)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Int64("room_id", roomID).Msg("Group invite notification failed")
		} else {
			resp["invite"] = invite
		}
	}
	rw.Created(resp)
}

// sendInvite notifies a new member that actorID added them to a room.
func (h *Handler) sendInvite(ctx context.Context, actorID, recipientID, roomID int64) (deliveryResponse, error) {
	room, err := h.db.GetRoom(ctx, roomID)
	if err != nil {
		return deliveryResponse{}, err
	}
	_, del, err := h.dispatcher.Notify(ctx, dispatch.GroupInvite{
		ActorID:     actorID,
		RecipientID: recipientID,
		RoomID:      roomID,
		RoomName:    room.Name,
	})
	if err != nil {
		return deliveryResponse{}, err
	}
	return newDeliveryResponse(del), nil
}

// RemoveRoomMember revokes room membership. Every live connection of the
// removed subscriber to the room is closed with 4003, in every process.
// Owners may remove anyone; a subscriber may always remove themselves.
//
// @Summary Remove a room member
// @Tags Rooms
// @Produce json
// @Param room_id path int true "Room ID"
// @Param subscriber_id path int true "Subscriber ID"
// @Success 200 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/rooms/{room_id}/members/{subscriber_id} [delete]
func (h *Handler) RemoveRoomMember(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	roomID, err := pathID(r, "room_id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	subscriberID, err := pathID(r, "subscriber_id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	c := claims(r)
	if c.SubscriberID != subscriberID {
		ok, err := h.canManageRoom(r.Context(), c, roomID)
		if err != nil {
			writeDomainError(rw, err)
			return
		}
		if !ok {
			rw.Forbidden("only room owners may remove other members")
			return
		}
	}

	removed, del, err := h.dispatcher.RevokeMembership(r.Context(), roomID, subscriberID)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if !removed {
		rw.NotFound("subscriber is not a member of this room")
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("room_id", roomID).
		Int64("subscriber_id", subscriberID).
		Bool("evict_pushed", del.Pushed).
		Msg("Room membership revoked")

	rw.Success(map[string]interface{}{
		"room_id":       roomID,
		"subscriber_id": subscriberID,
		"removed":       true,
		"evict":         newDeliveryResponse(del),
	})
}

// ListRoomMessages is the durable read path for chat history, newest first.
//
// @Summary List room messages
// @Tags Rooms
// @Produce json
// @Param room_id path int true "Room ID"
// @Param limit query int false "Page size (1-200)" default(50)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} APIResponse{data=[]models.Message}
// @Failure 403 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/rooms/{room_id}/messages [get]
func (h *Handler) ListRoomMessages(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	roomID, err := pathID(r, "room_id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	page := parsePage(r)
	if !validateRequest(rw, &page) {
		return
	}

	ok, err := h.canReadRoom(r.Context(), claims(r), roomID)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if !ok {
		rw.Forbidden("not a member of this room")
		return
	}

	messages, err := h.db.ListMessages(r.Context(), roomID, page.Limit+1, page.Offset)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	meta, n := pagination(page, len(messages))
	messages = messages[:n]
	if messages == nil {
		messages = []models.Message{}
	}
	rw.SuccessWithPagination(messages, meta)
}

// SendRoomMessage stores a chat message from the caller and publishes it to
// the room. A publish failure does not fail the request.
//
// @Summary Send a chat message
// @Tags Rooms
// @Accept json
// @Produce json
// @Param room_id path int true "Room ID"
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} APIResponse{data=messageResponse}
// @Failure 400 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/rooms/{room_id}/messages [post]
func (h *Handler) SendRoomMessage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	roomID, err := pathID(r, "room_id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	var req SendMessageRequest
	if !decodeAndValidate(rw, w, r, &req) {
		return
	}

	msg, del, err := h.dispatcher.SendChatMessage(r.Context(), dispatch.ChatMessageInput{
		RoomID:      roomID,
		SenderID:    claims(r).SubscriberID,
		Content:     req.Content,
		MessageType: req.MessageType,
		ReplyTo:     req.ReplyTo,
	})
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Created(messageResponse{Message: msg, Delivery: newDeliveryResponse(del)})
}
