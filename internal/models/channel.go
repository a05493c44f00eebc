// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package models defines the shared data types of PushRelay: the four
// delivery channels, the payload carried by each channel's pending records,
// and the control API envelopes.
package models

import "fmt"

// Channel identifies one kind of outbound operation. Every channel has its
// own record queue, command queues and retry counter.
type Channel string

// Delivery channels.
const (
	ChannelSubscribe   Channel = "subscribe"
	ChannelTokenUpdate Channel = "token_update"
	ChannelPushEvent   Channel = "push_event"
	ChannelMobileEvent Channel = "mobile_event"
)

// Channels lists every channel in the order they are started on app launch.
var Channels = []Channel{
	ChannelTokenUpdate,
	ChannelSubscribe,
	ChannelPushEvent,
	ChannelMobileEvent,
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSubscribe, ChannelTokenUpdate, ChannelPushEvent, ChannelMobileEvent:
		return true
	default:
		return false
	}
}

func (c Channel) String() string {
	return string(c)
}

// ParseChannel converts a string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}
