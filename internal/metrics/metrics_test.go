// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "messages_test"))

	RecordDBQuery("insert", "messages_test", 5*time.Millisecond, nil)
	RecordDBQuery("insert", "messages_test", 5*time.Millisecond, errors.New("constraint"))

	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "messages_test"))
	if after-before != 1 {
		t.Errorf("expected exactly one recorded error, got %v", after-before)
	}
}

func TestRecordBusPublish(t *testing.T) {
	counter := BusPublished.WithLabelValues("memory_test", "failure")
	before := testutil.ToFloat64(counter)

	RecordBusPublish("memory_test", "failure", time.Millisecond)
	RecordBusPublish("memory_test", "failure", time.Millisecond)

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("expected 2 failures recorded, got %v", got)
	}
}

func TestRecordDispatch(t *testing.T) {
	counter := DispatchTotal.WithLabelValues("like_test", "suppressed")
	before := testutil.ToFloat64(counter)

	RecordDispatch("like_test", "suppressed")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected 1 suppressed dispatch, got %v", got)
	}
}

func TestRecordSchedulerRun(t *testing.T) {
	ok := SchedulerRuns.WithLabelValues("job_test", "success")
	failed := SchedulerRuns.WithLabelValues("job_test", "failure")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	RecordSchedulerRun("job_test", time.Second, nil)
	RecordSchedulerRun("job_test", time.Second, errors.New("timeout"))

	if testutil.ToFloat64(ok)-okBefore != 1 || testutil.ToFloat64(failed)-failedBefore != 1 {
		t.Error("expected one success and one failure")
	}
}

func TestRecordWSConnection(t *testing.T) {
	counter := WSConnectionsTotal.WithLabelValues("chat_test", "forbidden")
	before := testutil.ToFloat64(counter)

	RecordWSConnection("chat_test", "forbidden")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected 1 forbidden connection, got %v", got)
	}
}
