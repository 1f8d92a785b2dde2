package service

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const cacheNS = "ebp:v1"

func facilityKey(id uuid.UUID) string {
	return cacheNS + ":facility:" + id.String()
}

func ticketsKey(eventID uuid.UUID) string {
	return cacheNS + ":event:" + eventID.String() + ":tickets"
}

// assign copies v into dst through its JSON form.
func assign(dst, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode cached value")
	}
	return errors.Wrap(json.Unmarshal(b, dst), "decode cached value")
}
