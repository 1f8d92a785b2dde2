package mongo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	documentsBucket = "documents"
	pathPrefix      = "gridfs://" + documentsBucket + "/"
)

// DocumentStore renders invoices as JSON into a GridFS bucket.
type DocumentStore struct {
	bucket *gridfs.Bucket
}

func NewDocumentStore(db *mongo.Database) (*DocumentStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(documentsBucket))
	if err != nil {
		return nil, errors.Wrap(err, "open gridfs bucket")
	}
	return &DocumentStore{bucket: bucket}, nil
}

// Generate stores inv and returns its path, gridfs://documents/<object id>.
func (d *DocumentStore) Generate(ctx context.Context, inv service.Invoice) (string, error) {
	body, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode invoice")
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := d.bucket.SetWriteDeadline(dl); err != nil {
			return "", err
		}
	}
	meta := options.GridFSUpload().SetMetadata(bson.M{
		"kind":     inv.Kind,
		"user_id":  inv.UserID.String(),
		"event_id": inv.EventID.String(),
	})
	id, err := d.bucket.UploadFromStream(inv.Kind+"-"+inv.ID.String()+".json", bytes.NewReader(body), meta)
	if err != nil {
		return "", errors.Wrap(err, "upload invoice")
	}
	return pathPrefix + id.Hex(), nil
}

// Open returns the stored document at path.
func (d *DocumentStore) Open(ctx context.Context, path string) ([]byte, error) {
	hex, ok := strings.CutPrefix(path, pathPrefix)
	if !ok {
		return nil, domain.Validationf("invalid document path %q", path)
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, domain.Validationf("invalid document path %q", path)
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := d.bucket.SetReadDeadline(dl); err != nil {
			return nil, err
		}
	}
	stream, err := d.bucket.OpenDownloadStream(id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, domain.NotFoundf("document not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "open document")
	}
	defer stream.Close()
	return io.ReadAll(stream)
}
