package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ActivityLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewActivityLogger(db *mongo.Database, logger observability.Logger) *ActivityLogger {
	return &ActivityLogger{
		coll:   db.Collection("activity_logs"),
		logger: logger,
	}
}

type ActivityDoc struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"user_id" json:"user_id"`
	EventID     string    `bson:"event_id" json:"event_id"`
	Type        string    `bson:"type" json:"type"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	Status      string    `bson:"status" json:"status"`
	Amount      string    `bson:"amount" json:"amount"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

func (a *ActivityLogger) LogActivity(ctx context.Context, act service.Activity) error {
	if act.CreatedAt.IsZero() {
		act.CreatedAt = time.Now().UTC()
	}
	doc := ActivityDoc{
		ID:          uuid.NewString(),
		UserID:      act.UserID.String(),
		EventID:     act.EventID.String(),
		Type:        act.Type,
		Title:       act.Title,
		Description: act.Description,
		Status:      act.Status,
		Amount:      act.Amount.StringFixed(2),
		CreatedAt:   act.CreatedAt,
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.WithField("user_id", doc.UserID).WithError(err).Error("failed to insert activity")
		return errors.Wrap(err, "insert activity")
	}
	return nil
}

// ListActivities returns a user's feed, newest first.
func (a *ActivityLogger) ListActivities(ctx context.Context, userID uuid.UUID, limit int64) ([]ActivityDoc, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find activities")
	}
	docs := []ActivityDoc{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode activities")
	}
	return docs, nil
}

// EnsureIndexes creates the indexes the feed and snapshot queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("activity_logs").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return errors.Wrap(err, "activity_logs index")
	}
	_, err = db.Collection("event_facilities").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "event_date", Value: 1}},
	})
	return errors.Wrap(err, "event_facilities index")
}
