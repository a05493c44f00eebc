// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

/*
Package engine drives pending records from "queued" to "delivered" or
"abandoned" for the four delivery channels.

# Architecture

Each channel has one Orchestrator built from the same generic state machine
and a channel Strategy:

	             +--------------+      +-------------+
	Submit ----> | entity queue | ---> | RecordStore |
	             +--------------+      +-------------+
	                    |                     ^
	                    v                     |
	Start  ----> +--------------+  gate  +---------+   Sender
	backoff ---> | start queue  | -----> |  drain  | ----------> server
	             +--------------+        +---------+
	                                          |
	                                          v
	                               retry.Scheduler (backoff)

The entity queue serializes record creation. The start queue is
single-flight and epoch-aware: at most one drain per channel runs at a time,
and ResetAll or an expired background budget invalidates the running drain
so its late completion cannot touch shared state.

# Drain

A drain waits for connectivity, runs the strategy's pre-send check,
resolves the user tag, purges stale records and fetches the pending ones
oldest-first. Each record is sent and classified:

  - Success or Terminal: the record is deleted. A failed delete is retried
    like a server error. Terminal also emits a "terminal" event.
  - Retryable: the record's attempt counter is incremented. At the
    per-record limit the record is deleted and "abandoned" is emitted.
    Otherwise the drain stops (or continues, in sweep mode) and a backoff
    is scheduled once the loop ends.

Records that cannot be decoded or turned into a request are deleted and
reported once; they never affect channel counters. A missing user tag aborts
the drain without a backoff. Store corruption puts the orchestrator into a
degraded no-op state until ResetAll.

# Per-channel differences

	Channel       Pre-send gate               Stops on retry   Extra
	subscribe     connectivity + permission   yes              needs a confirmed device token
	token_update  connectivity                yes              latest token only, confirmed on non-retryable outcome
	push_event    connectivity                yes, not sweep   optional per-record backoff keys
	mobile_event  connectivity                yes              stale purge before each drain
*/
package engine
