// Copyright 2025 Certen Protocol

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// AuditRepository appends and queries the immutable audit log.
type AuditRepository struct {
	client *Client
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(client *Client) *AuditRepository {
	return &AuditRepository{client: client}
}

// Append inserts a new audit event. Never mutated afterward.
func (r *AuditRepository) Append(ctx context.Context, eventType, actorPubKey, resourceType, resourceID, action string, details interface{}) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("append audit event: marshal details: %w", err)
		}
	}

	var actor sql.NullString
	if actorPubKey != "" {
		actor = sql.NullString{String: actorPubKey, Valid: true}
	}

	_, err := r.client.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, actor_public_key, resource_type, resource_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, eventType, actor, resourceType, resourceID, action, detailsJSON)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ForResource returns the audit trail for a given resource, oldest first.
func (r *AuditRepository) ForResource(ctx context.Context, resourceType, resourceID string) ([]AuditEvent, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT id, event_type, actor_public_key, resource_type, resource_id, action, details, created_at
		FROM audit_events
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at ASC
	`, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("audit for resource: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorPubKey, &e.ResourceType, &e.ResourceID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit for resource: scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
