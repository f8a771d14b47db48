package models

import (
	"fmt"
	"time"
)

type TicketType string

const (
	TicketMissingPair   TicketType = "missing_pair"
	TicketDamagePair    TicketType = "damage_pair"
	TicketWrongProducts TicketType = "wrong_products"
	TicketOther         TicketType = "other"
)

func ParseTicketType(s string) (TicketType, error) {
	switch t := TicketType(s); t {
	case TicketMissingPair, TicketDamagePair, TicketWrongProducts, TicketOther:
		return t, nil
	}
	return "", fmt.Errorf("unknown ticket type %q", s)
}

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketRejected   TicketStatus = "rejected"
)

func (s TicketStatus) Terminal() bool { return s == TicketResolved || s == TicketRejected }

// TicketMedia points at an object in the media bucket. URL is filled on read.
type TicketMedia struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	URL         string `json:"url,omitempty"`
}

type Ticket struct {
	ID          string        `json:"ticket_id"`
	VendorID    string        `json:"vendor_id"`
	OrderNumber string        `json:"order_id"`
	FiledBy     string        `json:"filed_by"`
	Type        TicketType    `json:"type"`
	Description string        `json:"description"`
	Media       []TicketMedia `json:"media,omitempty"`
	Status      TicketStatus  `json:"status"`
	Resolution  string        `json:"resolution,omitempty"`
	Version     int           `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}
