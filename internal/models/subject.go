// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package models

// SubjectKind discriminates the two subject variants.
type SubjectKind string

const (
	// SubjectKindSystem is a trusted service-to-service identity.
	SubjectKindSystem SubjectKind = "system"

	// SubjectKindUser is a human principal behind an OAuth credential.
	SubjectKindUser SubjectKind = "user"
)

// Profile is the cached upstream profile captured at login.
type Profile struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Subject is an authenticated principal: either the platform's own system
// identity or a user. The tagged-union shape keeps user-only fields out of
// reach for system subjects; use the constructors rather than building the
// struct by hand.
type Subject struct {
	// Kind discriminates the variants.
	Kind SubjectKind `json:"kind"`

	// ID is empty for system subjects.
	ID string `json:"id,omitempty"`

	// Profile is only present for user subjects.
	Profile *Profile `json:"profile,omitempty"`
}

// SystemSubject returns the system identity variant.
func SystemSubject() Subject {
	return Subject{Kind: SubjectKindSystem}
}

// UserSubject returns the user variant with the given ID and cached profile.
func UserSubject(id string, profile *Profile) Subject {
	return Subject{Kind: SubjectKindUser, ID: id, Profile: profile}
}

// IsSystem reports whether the subject is the trusted system identity.
func (s Subject) IsSystem() bool {
	return s.Kind == SubjectKindSystem
}

// Username returns the cached display name, or empty when unknown.
func (s Subject) Username() string {
	if s.Kind == SubjectKindSystem {
		return "system"
	}
	if s.Profile != nil {
		return s.Profile.Username
	}
	return ""
}
