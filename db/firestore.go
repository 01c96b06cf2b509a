package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"visitorgate/apperr"
	"visitorgate/models"
)

// FirestoreStore keeps each table as a collection of documents keyed by id.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewFirestoreStore initializes a Firestore client. credentialsPath may be
// empty when FIRESTORE_EMULATOR_HOST or ambient credentials are used.
func NewFirestoreStore(ctx context.Context, projectID, credentialsPath string, logger *zap.Logger) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	config := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	logger = logger.Named("firestore")
	logger.Info("connected to Firestore", zap.String("project_id", projectID))

	return &FirestoreStore{client: client, logger: logger, now: time.Now}, nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// Ping reads at most one document of the locations collection.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	iter := s.client.Collection(string(models.EntityLocations)).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return &apperr.RemoteError{Op: "ping", Entity: string(models.EntityLocations), Err: err}
	}
	return nil
}

func (s *FirestoreStore) ListVisitors(ctx context.Context) ([]models.VisitorSession, error) {
	var out []models.VisitorSession
	err := s.each(ctx, models.EntityVisitors, "created_at", firestore.Desc, func(doc *firestore.DocumentSnapshot) error {
		var r visitorRow
		if err := doc.DataTo(&r); err != nil {
			return err
		}
		out = append(out, r.model())
		return nil
	})
	return out, err
}

func (s *FirestoreStore) ListVisitLogs(ctx context.Context) ([]models.VisitLogEntry, error) {
	var out []models.VisitLogEntry
	err := s.each(ctx, models.EntityVisitLogs, "created_at", firestore.Asc, func(doc *firestore.DocumentSnapshot) error {
		var r visitLogRow
		if err := doc.DataTo(&r); err != nil {
			return err
		}
		out = append(out, r.model())
		return nil
	})
	return out, err
}

func (s *FirestoreStore) ListLocations(ctx context.Context) ([]models.Location, error) {
	var out []models.Location
	// Firestore breaks created_at ties by document id, which is the location id.
	err := s.each(ctx, models.EntityLocations, "created_at", firestore.Asc, func(doc *firestore.DocumentSnapshot) error {
		var r locationRow
		if err := doc.DataTo(&r); err != nil {
			return err
		}
		out = append(out, r.model())
		return nil
	})
	return out, err
}

func (s *FirestoreStore) ListFrequentVisitors(ctx context.Context) ([]models.FrequentVisitor, error) {
	var out []models.FrequentVisitor
	err := s.each(ctx, models.EntityFrequentVisitors, "created_at", firestore.Desc, func(doc *firestore.DocumentSnapshot) error {
		var r frequentVisitorRow
		if err := doc.DataTo(&r); err != nil {
			return err
		}
		out = append(out, r.model())
		return nil
	})
	return out, err
}

func (s *FirestoreStore) LocationIDs(ctx context.Context) ([]string, error) {
	refs, err := s.client.Collection(string(models.EntityLocations)).DocumentRefs(ctx).GetAll()
	if err != nil {
		return nil, apperr.Remote("list ids", string(models.EntityLocations), err)
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// DeleteAll deletes every document of the collection through a BulkWriter.
func (s *FirestoreStore) DeleteAll(ctx context.Context, table models.Entity) error {
	if err := checkTable(table); err != nil {
		return err
	}
	refs, err := s.client.Collection(string(table)).DocumentRefs(ctx).GetAll()
	if err != nil {
		return apperr.Remote("delete", string(table), err)
	}
	return s.bulk(ctx, "delete", table, len(refs), func(bw *firestore.BulkWriter, i int) (*firestore.BulkWriterJob, error) {
		return bw.Delete(refs[i])
	})
}

func (s *FirestoreStore) DeleteLocations(ctx context.Context, ids []string) error {
	col := s.client.Collection(string(models.EntityLocations))
	return s.bulk(ctx, "delete", models.EntityLocations, len(ids), func(bw *firestore.BulkWriter, i int) (*firestore.BulkWriterJob, error) {
		return bw.Delete(col.Doc(ids[i]))
	})
}

func (s *FirestoreStore) InsertVisitors(ctx context.Context, visitors []models.VisitorSession) error {
	col := s.client.Collection(string(models.EntityVisitors))
	return s.bulk(ctx, "insert", models.EntityVisitors, len(visitors), func(bw *firestore.BulkWriter, i int) (*firestore.BulkWriterJob, error) {
		r := toVisitorRow(visitors[i])
		return bw.Set(col.Doc(r.ID), r)
	})
}

func (s *FirestoreStore) InsertVisitLogs(ctx context.Context, logs []models.VisitLogEntry) error {
	col := s.client.Collection(string(models.EntityVisitLogs))
	return s.bulk(ctx, "insert", models.EntityVisitLogs, len(logs), func(bw *firestore.BulkWriter, i int) (*firestore.BulkWriterJob, error) {
		r := toVisitLogRow(logs[i])
		return bw.Set(col.Doc(r.ID), r)
	})
}

func (s *FirestoreStore) InsertFrequentVisitors(ctx context.Context, visitors []models.FrequentVisitor) error {
	col := s.client.Collection(string(models.EntityFrequentVisitors))
	now := s.now()
	return s.bulk(ctx, "insert", models.EntityFrequentVisitors, len(visitors), func(bw *firestore.BulkWriter, i int) (*firestore.BulkWriterJob, error) {
		r := toFrequentVisitorRow(visitors[i], now)
		return bw.Set(col.Doc(r.ID), r)
	})
}

// UpsertLocations overwrites each location document by id.
func (s *FirestoreStore) UpsertLocations(ctx context.Context, locations []models.Location) error {
	col := s.client.Collection(string(models.EntityLocations))
	now := s.now()
	return s.bulk(ctx, "upsert", models.EntityLocations, len(locations), func(bw *firestore.BulkWriter, i int) (*firestore.BulkWriterJob, error) {
		r := toLocationRow(locations[i])
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		return bw.Set(col.Doc(r.ID), r)
	})
}

func (s *FirestoreStore) each(ctx context.Context, table models.Entity, orderBy string, dir firestore.Direction, fn func(*firestore.DocumentSnapshot) error) error {
	iter := s.client.Collection(string(table)).OrderBy(orderBy, dir).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return apperr.Remote("list", string(table), fmt.Errorf("failed to iterate %s: %w", table, err))
		}
		if err := fn(doc); err != nil {
			s.logger.Warn("skipping unreadable document",
				zap.String("collection", string(table)),
				zap.String("id", doc.Ref.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *FirestoreStore) bulk(ctx context.Context, op string, table models.Entity, n int, add func(*firestore.BulkWriter, int) (*firestore.BulkWriterJob, error)) error {
	if n == 0 {
		return nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, n)
	for i := 0; i < n; i++ {
		job, err := add(bw, i)
		if err != nil {
			bw.End()
			return apperr.Remote(op, string(table), err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return apperr.Remote(op, string(table), err)
		}
	}
	return nil
}
