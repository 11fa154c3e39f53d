package model

import "time"

// Message status values. DELIVERED is reserved for a future delivery receipt
// flow; nothing drives it yet.
const (
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
)

// Message is a stored one-to-one message, hydrated with the display fields
// downstream consumers need so push delivery avoids a second lookup.
type Message struct {
	MsgID      int64     `json:"msgId"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	Images     []string  `json:"images,omitempty"`
	Status     string    `json:"status"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`

	SenderName       string `json:"senderName,omitempty"`
	SenderPortrait   string `json:"senderPortrait,omitempty"`
	ReceiverName     string `json:"receiverName,omitempty"`
	ReceiverPortrait string `json:"receiverPortrait,omitempty"`
}

// User is the slice of the user directory this service reads.
type User struct {
	UserID   int64  `json:"userId"`
	Nickname string `json:"nickname"`
	Portrait string `json:"portrait"`
}

// Conversation is the derived per-partner view: never stored, recomputed on
// every query.
type Conversation struct {
	PartnerID       int64    `json:"partnerId"`
	PartnerName     string   `json:"partnerName"`
	PartnerPortrait string   `json:"partnerPortrait"`
	LastMessage     *Message `json:"lastMessage"`
	UnreadCount     int      `json:"unreadCount"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func NewPageMeta(page, limit int, total int64) PageMeta {
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return PageMeta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

type MessagePatch struct {
	Content *string
	Images  *[]string
}
