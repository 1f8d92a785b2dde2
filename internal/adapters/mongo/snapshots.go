package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SnapshotRepository keeps a denormalized copy of each event's facilities for display.
// The relational store stays authoritative.
type SnapshotRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewSnapshotRepository(db *mongo.Database, logger observability.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		coll:   db.Collection("event_facilities"),
		logger: logger,
	}
}

type SnapshotDoc struct {
	EventID    string        `bson:"_id"`
	EventName  string        `bson:"event_name"`
	EventDate  time.Time     `bson:"event_date"`
	Slot       string        `bson:"slot"`
	Facilities []FacilityDoc `bson:"facilities"`
	CreatedAt  time.Time     `bson:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}

type FacilityDoc struct {
	FacilityID string `bson:"facility_id"`
	Type       string `bson:"facility_type"`
	Name       string `bson:"name"`
	Quantity   int    `bson:"quantity"`
	UnitPrice  string `bson:"unit_price"`
}

func (s *SnapshotRepository) SaveSnapshot(ctx context.Context, snap service.FacilitySnapshot) error {
	now := time.Now().UTC()
	facilities := make([]FacilityDoc, 0, len(snap.Facilities))
	for _, f := range snap.Facilities {
		facilities = append(facilities, FacilityDoc{
			FacilityID: f.FacilityID.String(),
			Type:       string(f.Type),
			Name:       f.Name,
			Quantity:   f.Quantity,
			UnitPrice:  f.UnitPrice.StringFixed(2),
		})
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": snap.EventID.String()},
		bson.M{
			"$set": bson.M{
				"event_name": snap.EventName,
				"event_date": snap.EventDate,
				"slot":       string(snap.Slot),
				"facilities": facilities,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		s.logger.WithField("event_id", snap.EventID).WithError(err).Error("failed to save facility snapshot")
		return errors.Wrap(err, "save snapshot")
	}
	return nil
}

func (s *SnapshotRepository) UpdateSnapshotDate(ctx context.Context, eventID uuid.UUID, date time.Time, slot domain.Slot) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": eventID.String()},
		bson.M{"$set": bson.M{"event_date": date, "slot": string(slot), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		s.logger.WithField("event_id", eventID).WithError(err).Error("failed to update facility snapshot")
		return errors.Wrap(err, "update snapshot")
	}
	if res.MatchedCount == 0 {
		return domain.NotFoundf("snapshot for event %s not found", eventID)
	}
	return nil
}

func (s *SnapshotRepository) GetSnapshot(ctx context.Context, eventID uuid.UUID) (*SnapshotDoc, error) {
	var doc SnapshotDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": eventID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFoundf("snapshot for event %s not found", eventID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get snapshot")
	}
	return &doc, nil
}
