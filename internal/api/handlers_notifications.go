// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"net/http"

	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/models"
)

// notificationActionResponse is returned by NotificationAction.
type notificationActionResponse struct {
	Notification *models.Notification `json:"notification,omitempty"`
	Delivery     deliveryResponse     `json:"delivery"`

	// Duplicate is set when the action repeated an earlier one and the
	// existing notification was returned without a push.
	Duplicate bool `json:"duplicate,omitempty"`
}

// ListNotifications returns the caller's notifications, newest first. This
// is how clients catch up on anything pushed while they were offline.
//
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread notifications"
// @Param limit query int false "Page size (1-200)" default(50)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} APIResponse{data=[]models.Notification}
// @Security BearerAuth
// @Router /api/v1/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	page := parsePage(r)
	if !validateRequest(rw, &page) {
		return
	}

	list, err := h.db.ListNotifications(r.Context(), claims(r).SubscriberID, getBoolParam(r, "unread"), page.Limit+1, page.Offset)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	meta, n := pagination(page, len(list))
	list = list[:n]
	if list == nil {
		list = []models.Notification{}
	}
	rw.SuccessWithPagination(list, meta)
}

// UnreadNotificationCount returns the caller's unread notification count.
//
// @Summary Count unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/notifications/unread-count [get]
func (h *Handler) UnreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	count, err := h.db.CountUnreadNotifications(r.Context(), claims(r).SubscriberID)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Success(map[string]int64{"unread_count": count})
}

// MarkNotificationRead marks one of the caller's notifications read.
// Notifications of other subscribers are reported as not found.
//
// @Summary Mark a notification read
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/notifications/{id}/read [post]
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	recipient := claims(r).SubscriberID
	n, err := h.db.GetNotification(r.Context(), id)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if n.RecipientID != recipient {
		rw.NotFound("notification not found")
		return
	}

	changed, err := h.dispatcher.MarkNotificationRead(r.Context(), recipient, id)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Success(map[string]interface{}{"id": id, "changed": changed})
}

// MarkAllNotificationsRead marks every unread notification of the caller read.
//
// @Summary Mark all notifications read
// @Tags Notifications
// @Produce json
// @Success 200 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/notifications/read-all [post]
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	updated, err := h.dispatcher.MarkAllNotificationsRead(r.Context(), claims(r).SubscriberID)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Success(map[string]int64{"updated": updated})
}

// NotificationAction executes a domain action (like, comment, follow, ...)
// posted by another backend service: the notification is stored for the
// recipient and pushed to their notification room.
//
// @Summary Execute a notification action
// @Description Self-actions (actor equals recipient) are suppressed. A push failure is reported in delivery.push_error; the notification is still stored.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body dispatch.ActionFields true "Action"
// @Success 201 {object} APIResponse{data=notificationActionResponse} "Notification stored"
// @Success 200 {object} APIResponse{data=notificationActionResponse} "Suppressed or duplicate"
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/notifications/actions [post]
func (h *Handler) NotificationAction(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var fields dispatch.ActionFields
	if !decodeAndValidate(rw, w, r, &fields) {
		return
	}
	action, err := dispatch.ParseAction(fields)
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	n, del, err := h.dispatcher.Notify(r.Context(), action)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if del.PushErr != nil {
		logging.Ctx(r.Context()).Warn().Err(del.PushErr).
			Str("kind", action.Kind()).
			Int64("notification_id", del.RecordID).
			Msg("Notification stored but not pushed")
	}

	resp := notificationActionResponse{Notification: n, Delivery: newDeliveryResponse(del)}
	if del.Suppressed || n == nil {
		rw.Success(resp)
		return
	}
	if !del.Pushed && del.PushErr == nil {
		resp.Duplicate = true
		rw.Success(resp)
		return
	}
	rw.Created(resp)
}
