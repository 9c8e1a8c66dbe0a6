// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/switchboard/internal/dispatch"
	"github.com/tomtom215/switchboard/internal/logging"
	"github.com/tomtom215/switchboard/internal/models"
	"github.com/tomtom215/switchboard/internal/scheduler"
)

// CreateBroadcastRequest is the body of POST /api/v1/broadcasts.
type CreateBroadcastRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	ActorID  int64  `json:"actor_id" validate:"required,gt=0"`
	Title    string `json:"title" validate:"required,max=255"`
	Body     string `json:"body,omitempty" validate:"max=4000"`
	CronExpr string `json:"cron_expr" validate:"required,max=128"`
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

// RunBroadcastRequest is the optional body of POST /api/v1/broadcasts/{id}/run.
type RunBroadcastRequest struct {
	// RunAt identifies the run. Posting the same RunAt twice never notifies
	// a subscriber twice. Defaults to the current second.
	RunAt *time.Time `json:"run_at,omitempty"`
}

// SetBroadcastEnabledRequest is the body of PUT /api/v1/broadcasts/{id}/enabled.
type SetBroadcastEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// CreateBroadcast stores a cron-scheduled broadcast. The first run time is
// computed from the expression in the broadcast's timezone.
//
// @Summary Create a scheduled broadcast
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param request body CreateBroadcastRequest true "Broadcast definition"
// @Success 201 {object} APIResponse{data=models.ScheduledBroadcast}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse "Actor does not exist"
// @Security BearerAuth
// @Router /api/v1/broadcasts [post]
func (h *Handler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreateBroadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(rw, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Title = strings.TrimSpace(req.Title)
	req.CronExpr = strings.TrimSpace(req.CronExpr)
	if !validateRequest(rw, &req) {
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}

	if _, err := scheduler.ParseSchedule(req.CronExpr); err != nil {
		rw.ValidationError(err.Error(), map[string]interface{}{"field": "cron_expr", "tag": "cron"})
		return
	}
	next, err := scheduler.NextRun(req.CronExpr, h.now(), req.Timezone)
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	b := &models.ScheduledBroadcast{
		Name:      req.Name,
		ActorID:   req.ActorID,
		Title:     req.Title,
		Body:      req.Body,
		CronExpr:  req.CronExpr,
		Timezone:  req.Timezone,
		Enabled:   enabled,
		NextRunAt: &next,
	}
	if err := h.db.CreateScheduledBroadcast(r.Context(), b); err != nil {
		writeDomainError(rw, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("broadcast_id", b.ID).
		Str("cron", b.CronExpr).
		Time("next_run_at", next).
		Msg("Scheduled broadcast created")

	rw.Created(b)
}

// ListBroadcasts returns every scheduled broadcast.
//
// @Summary List scheduled broadcasts
// @Tags Broadcasts
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.ScheduledBroadcast}
// @Security BearerAuth
// @Router /api/v1/broadcasts [get]
func (h *Handler) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	list, err := h.db.ListScheduledBroadcasts(r.Context())
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if list == nil {
		list = []models.ScheduledBroadcast{}
	}
	rw.Success(list)
}

// RunBroadcast runs a broadcast now, outside its schedule. The schedule's
// next_run_at is left unchanged.
//
// @Summary Run a broadcast now
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param id path int true "Broadcast ID"
// @Param request body RunBroadcastRequest false "Run identity"
// @Success 200 {object} APIResponse{data=dispatch.BroadcastResult}
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/broadcasts/{id}/run [post]
func (h *Handler) RunBroadcast(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	var req RunBroadcastRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeDomainError(rw, err)
			return
		}
	}
	runAt := h.now().Truncate(time.Second)
	if req.RunAt != nil {
		runAt = req.RunAt.UTC()
	}

	b, err := h.db.GetScheduledBroadcast(r.Context(), id)
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	res, err := h.dispatcher.Broadcast(r.Context(), dispatch.BroadcastInput{
		BroadcastID: b.ID,
		ActorID:     b.ActorID,
		Title:       b.Title,
		Body:        b.Body,
		RunAt:       runAt,
	})
	status := models.BroadcastStatusSuccess
	if err != nil {
		status = models.BroadcastStatusFailed
	}
	if cerr := h.db.CompleteBroadcastRun(r.Context(), b.ID, h.now(), status, b.NextRunAt); cerr != nil {
		logging.Ctx(r.Context()).Warn().Err(cerr).Int64("broadcast_id", b.ID).Msg("Failed to record manual broadcast run")
	}
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("broadcast_id", b.ID).
		Str("dedup_key", res.DedupKey).
		Int("created", res.Created).
		Int("push_failed", res.PushFailed).
		Msg("Broadcast run manually")

	rw.Success(res)
}

// SetBroadcastEnabled pauses or resumes a scheduled broadcast.
//
// @Summary Enable or disable a broadcast
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param id path int true "Broadcast ID"
// @Param request body SetBroadcastEnabledRequest true "Enabled flag"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Security BearerAuth
// @Router /api/v1/broadcasts/{id}/enabled [put]
func (h *Handler) SetBroadcastEnabled(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	var req SetBroadcastEnabledRequest
	if !decodeAndValidate(rw, w, r, &req) {
		return
	}
	if err := h.db.SetBroadcastEnabled(r.Context(), id, *req.Enabled); err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Success(map[string]interface{}{"id": id, "enabled": *req.Enabled})
}
