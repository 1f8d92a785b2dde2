package auth

import (
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-bookings-and-payouts/internal/domain"
)

const feedbackAudience = "feedback"

type feedbackClaims struct {
	EventID string `json:"event_id"`
	jwt.RegisteredClaims
}

// FeedbackSigner builds links that let an attendee leave feedback without logging in.
type FeedbackSigner struct {
	auth    *Authenticator
	baseURL string
	ttl     time.Duration
}

func NewFeedbackSigner(auth *Authenticator, baseURL string, ttl time.Duration) (*FeedbackSigner, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "policy.feedback_base_url")
	}
	return &FeedbackSigner{auth: auth, baseURL: baseURL, ttl: ttl}, nil
}

func (s *FeedbackSigner) FeedbackLink(eventID, userID uuid.UUID) (string, error) {
	now := s.auth.now()
	claims := feedbackClaims{
		EventID: eventID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{feedbackAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.auth.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign feedback token")
	}
	u, _ := url.Parse(s.baseURL)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Verify returns the event and attendee a feedback token was issued for.
func (s *FeedbackSigner) Verify(token string) (eventID, userID uuid.UUID, err error) {
	var claims feedbackClaims
	_, err = jwt.ParseWithClaims(token, &claims, s.auth.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(feedbackAudience),
		jwt.WithTimeFunc(s.auth.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, uuid.Nil, domain.Forbiddenf("invalid feedback token")
	}
	if eventID, err = uuid.Parse(claims.EventID); err != nil {
		return uuid.Nil, uuid.Nil, domain.Forbiddenf("invalid feedback token")
	}
	if userID, err = uuid.Parse(claims.Subject); err != nil {
		return uuid.Nil, uuid.Nil, domain.Forbiddenf("invalid feedback token")
	}
	return eventID, userID, nil
}
