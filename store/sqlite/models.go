package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/identity"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/types"
)

// stateRowID is the primary key of the single settings/identity row.
const stateRowID = 1

type stateModel struct {
	grove.BaseModel `grove:"table:credits_state"`

	ID          int64     `grove:"id,pk"`
	APIBase     string    `grove:"api_base"`
	DeviceID    string    `grove:"device_id"`
	SubjectID   string    `grove:"subject_id"`
	AccessToken string    `grove:"access_token"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func fromStateModel(m *stateModel) *identity.Identity {
	return &identity.Identity{
		DeviceID:    m.DeviceID,
		SubjectID:   m.SubjectID,
		AccessToken: m.AccessToken,
	}
}

type balanceModel struct {
	grove.BaseModel `grove:"table:credits_balance"`

	ID            int64     `grove:"id,pk"`
	FreeRemaining int64     `grove:"free_remaining"`
	PaidCredits   int64     `grove:"paid_credits"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toBalanceModel(b types.Balance) *balanceModel {
	return &balanceModel{
		ID:            stateRowID,
		FreeRemaining: b.FreeRemaining,
		PaidCredits:   b.PaidCredits,
		UpdatedAt:     now(),
	}
}

type pendingModel struct {
	grove.BaseModel `grove:"table:credits_pending"`

	Seq       int64     `grove:"seq,pk,autoincrement"`
	ID        string    `grove:"id"`
	Action    string    `grove:"action"`
	Cost      int64     `grove:"cost"`
	CreatedAt time.Time `grove:"created_at"`
}

func toPendingModel(c *pending.Consumption) *pendingModel {
	return &pendingModel{
		ID:        c.ID,
		Action:    c.Action,
		Cost:      c.Cost,
		CreatedAt: c.CreatedAt.UTC(),
	}
}

func fromPendingModel(m *pendingModel) *pending.Consumption {
	return &pending.Consumption{
		ID:        m.ID,
		Action:    m.Action,
		Cost:      m.Cost,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func now() time.Time {
	return time.Now().UTC()
}
