package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreAuditSink appends audit records to a collection.
type FirestoreAuditSink struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreAuditSink(client *firestore.Client, collection string) *FirestoreAuditSink {
	return &FirestoreAuditSink{client: client, collection: collection}
}

func (s *FirestoreAuditSink) Record(ctx context.Context, rec models.AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, _, err := s.client.Collection(s.collection).Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to add audit record to %s: %w", s.collection, err)
	}
	return nil
}

func (s *FirestoreAuditSink) Close() error {
	return s.client.Close()
}
