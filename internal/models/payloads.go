// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package models

import (
	"errors"
	"fmt"
)

// Subscription statuses accepted by the subscribe endpoint.
const (
	StatusSubscribed   = "subscribed"
	StatusSuspended    = "suspended"
	StatusUnsubscribed = "unsubscribed"
)

// Push event types.
const (
	PushEventDeliver = "deliver"
	PushEventOpen    = "open"
)

// SubscribePayload is stored in a subscribe record.
type SubscribePayload struct {
	Status        string                 `json:"status" validate:"required,oneof=subscribed suspended unsubscribed"`
	Sync          *int                   `json:"sync,omitempty" validate:"omitempty,oneof=0 1"`
	ProfileFields map[string]interface{} `json:"profile_fields,omitempty"`
	CustomFields  map[string]interface{} `json:"custom_fields,omitempty"`
	Cats          []CategoryData         `json:"cats,omitempty" validate:"omitempty,dive"`
	Replace       *bool                  `json:"replace,omitempty"`
	SkipTriggers  *bool                  `json:"skip_triggers,omitempty"`
}

// CategoryData is one subscription category toggle.
type CategoryData struct {
	Name   string `json:"name" validate:"required"`
	Title  string `json:"title,omitempty"`
	Steady bool   `json:"steady,omitempty"`
	Active bool   `json:"active"`
}

// TokenPayload is the device push token as delivered by a push provider.
type TokenPayload struct {
	Provider string `json:"provider" validate:"required,oneof=apns fcm hms"`
	Token    string `json:"token" validate:"required,min=8,max=4096"`
}

// Equal reports whether two tokens are the same provider/token pair.
func (t *TokenPayload) Equal(other *TokenPayload) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Provider == other.Provider && t.Token == other.Token
}

// PushEventPayload reports that a push was delivered to or opened on the device.
type PushEventPayload struct {
	UID  string `json:"uid" validate:"required,max=256"`
	Type string `json:"type" validate:"required,oneof=deliver open"`
}

// MobileEventPayload is a custom analytics event.
type MobileEventPayload struct {
	SID      string                 `json:"sid" validate:"required,max=256"`
	Name     string                 `json:"name" validate:"required,max=256"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Matching map[string]interface{} `json:"matching,omitempty"`
	UTM      *UTMData               `json:"utm,omitempty"`
}

// UTMData holds campaign attribution tags.
type UTMData struct {
	Campaign string `json:"campaign,omitempty"`
	Content  string `json:"content,omitempty"`
	Keyword  string `json:"keyword,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Source   string `json:"source,omitempty"`
	Temp     string `json:"temp,omitempty"`
}

// ErrInvalidPayload is returned when a stored payload does not satisfy the
// minimum shape required to build a request.
var ErrInvalidPayload = errors.New("invalid payload")

// Check performs the structural checks needed before a subscribe record can
// be sent.
func (p *SubscribePayload) Check() error {
	switch p.Status {
	case StatusSubscribed, StatusSuspended, StatusUnsubscribed:
		return nil
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidPayload, p.Status)
	}
}

// Check performs the structural checks needed before a token can be sent.
func (t *TokenPayload) Check() error {
	if t.Provider == "" || t.Token == "" {
		return fmt.Errorf("%w: provider and token are required", ErrInvalidPayload)
	}
	return nil
}

// Check performs the structural checks needed before a push event can be sent.
func (p *PushEventPayload) Check() error {
	if p.UID == "" {
		return fmt.Errorf("%w: uid is required", ErrInvalidPayload)
	}
	if p.Type != PushEventDeliver && p.Type != PushEventOpen {
		return fmt.Errorf("%w: type %q", ErrInvalidPayload, p.Type)
	}
	return nil
}

// Check performs the structural checks needed before a mobile event can be sent.
func (p *MobileEventPayload) Check() error {
	if p.SID == "" || p.Name == "" {
		return fmt.Errorf("%w: sid and name are required", ErrInvalidPayload)
	}
	return nil
}
