package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection = "idempotency_keys"
	txMaxAttempts     = 5
)

// FirestoreOption customises the Firestore-backed store.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding idempotency documents.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore implements Store on Firestore documents, one per key.
// Expired documents are reclaimed on the next Claim; a TTL policy on
// expires_at handles eventual deletion.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{client: client, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type claimDoc struct {
	Fingerprint    string              `firestore:"fingerprint"`
	Done           bool                `firestore:"done"`
	ResponseStatus int                 `firestore:"response_status"`
	ResponseHeader map[string][]string `firestore:"response_header"`
	ResponseBody   []byte              `firestore:"response_body"`
	CreatedAt      time.Time           `firestore:"created_at"`
	ExpiresAt      time.Time           `firestore:"expires_at"`
}

func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(docID(key))

	var claim Claim
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var doc claimDoc
		if err == nil {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}

		if err != nil || !now.Before(doc.ExpiresAt) {
			doc = claimDoc{Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			claim = Claim{State: StateNew}
			return nil
		}

		if doc.Fingerprint != fingerprint {
			return ErrKeyReused
		}
		if !doc.Done {
			claim = Claim{State: StateInFlight}
			return nil
		}
		claim = Claim{
			State: StateReplay,
			Response: StoredResponse{
				Status: doc.ResponseStatus,
				Header: doc.ResponseHeader,
				Body:   doc.ResponseBody,
			},
		}
		return nil
	}, firestore.MaxAttempts(txMaxAttempts))

	return claim, err
}

func (s *FirestoreStore) Complete(ctx context.Context, key string, resp StoredResponse, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(docID(key))
	body := append([]byte(nil), resp.Body...)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var doc claimDoc
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			doc = claimDoc{CreatedAt: now}
		} else if err := snap.DataTo(&doc); err != nil {
			return err
		}

		doc.Done = true
		doc.ResponseStatus = resp.Status
		doc.ResponseHeader = resp.Header
		doc.ResponseBody = body
		doc.ExpiresAt = now.Add(ttl)
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		return tx.Set(ref, doc)
	}, firestore.MaxAttempts(txMaxAttempts))
}

func (s *FirestoreStore) Forget(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(docID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}
