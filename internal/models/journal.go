package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JournalEntry records one attempted workflow action.
type JournalEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ServiceID string             `bson:"service_id" json:"service_id"`
	Action    string             `bson:"action" json:"action"`
	From      string             `bson:"from_state" json:"from_state"`
	To        string             `bson:"to_state" json:"to_state"`
	Success   bool               `bson:"success" json:"success"`
	Error     string             `bson:"error,omitempty" json:"error,omitempty"`
	Actor     string             `bson:"actor,omitempty" json:"actor,omitempty"`
	RequestID string             `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Amount    float64            `bson:"amount,omitempty" json:"amount,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
