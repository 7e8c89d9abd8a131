package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-process checkout provider for local runs and tests.
// Sessions start unpaid; SetPaymentStatus flips them.
type Fake struct {
	mu       sync.Mutex
	sessions map[string]Session
	baseURL  string
}

func NewFake(baseURL string) *Fake {
	if baseURL == "" {
		baseURL = "http://localhost/checkout"
	}
	return &Fake{sessions: map[string]Session{}, baseURL: baseURL}
}

func (f *Fake) CreateSession(_ context.Context, in CreateSessionInput) (Session, error) {
	if in.OrderID == "" || in.UserID == "" || in.Amount <= 0 {
		return Session{}, fmt.Errorf("invalid checkout session payload")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := "cs_test_" + uuid.NewString()
	session := Session{
		ID:            id,
		URL:           f.baseURL + "/" + id,
		Status:        "open",
		PaymentStatus: "unpaid",
		AmountTotal:   in.Amount * 100,
		Currency:      "cny",
		Metadata: map[string]string{
			"order_id":  in.OrderID,
			"user_id":   in.UserID,
			"plan_type": in.PlanType,
			"cycle":     in.Cycle,
			"amount":    strconv.FormatInt(in.Amount, 10),
		},
	}
	f.sessions[id] = session
	return session, nil
}

func (f *Fake) RetrieveSession(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (f *Fake) SetPaymentStatus(sessionID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.PaymentStatus = status
	if status == PaymentStatusPaid {
		session.Status = "complete"
	}
	f.sessions[sessionID] = session
	return nil
}

// Put stores a session as given, for tests that need arbitrary metadata.
func (f *Fake) Put(session Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
}
