package gormdb

import (
	"time"

	"gorm.io/datatypes"

	"roomstay/internal/domain/pricing"
)

type listingModel struct {
	ID             string                                `gorm:"type:varchar(64);primaryKey"`
	OwnerID        string                                `gorm:"type:varchar(64);not null;index"`
	Title          string                                `gorm:"type:varchar(255);not null"`
	City           string                                `gorm:"type:varchar(128)"`
	State          string                                `gorm:"type:varchar(16);not null"`
	TotalRooms     int                                   `gorm:"not null"`
	AvailableRooms int                                   `gorm:"not null"`
	Rates          datatypes.JSONType[pricing.RateTable] `gorm:"not null"`
	CreatedAt      time.Time                             `gorm:"not null"`
	UpdatedAt      time.Time                             `gorm:"not null"`
}

func (listingModel) TableName() string { return "listings" }

type bookingModel struct {
	ID              string    `gorm:"type:varchar(64);primaryKey"`
	ListingID       string    `gorm:"type:varchar(64);not null;index"`
	OwnerID         string    `gorm:"type:varchar(64);not null"`
	RequesterID     string    `gorm:"type:varchar(64);not null;index"`
	CheckIn         time.Time `gorm:"not null"`
	CheckOut        time.Time `gorm:"not null"`
	DurationUnit    string    `gorm:"type:varchar(16);not null"`
	DurationCount   int       `gorm:"not null"`
	PerPeriodAmount int64     `gorm:"not null"`
	TotalAmount     int64     `gorm:"not null"`
	Currency        string    `gorm:"type:char(3);not null"`
	GuestName       string    `gorm:"type:varchar(255);not null"`
	GuestPhone      string    `gorm:"type:varchar(64)"`
	GuestEmail      string    `gorm:"type:varchar(255)"`
	GuestIDDocument string    `gorm:"type:varchar(128)"`
	Notes           string    `gorm:"type:text"`
	State           string    `gorm:"type:varchar(16);not null;index"`
	CancelReason    string    `gorm:"type:varchar(255)"`
	CancelledBy     string    `gorm:"type:varchar(16)"`
	CancelledAt     *time.Time
	ConfirmedAt     *time.Time
	CheckedInAt     *time.Time
	CheckedOutAt    *time.Time
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime:false"`
	Version         int64     `gorm:"not null"`
}

func (bookingModel) TableName() string { return "bookings" }

type paymentModel struct {
	OrderID         string  `gorm:"type:varchar(64);primaryKey"`
	BookingID       string  `gorm:"type:varchar(64);not null;index"`
	ActiveBookingID *string `gorm:"type:varchar(64);uniqueIndex:uniq_active_booking"`
	RequesterID     string  `gorm:"type:varchar(64);not null"`
	Amount          int64   `gorm:"not null"`
	Currency        string  `gorm:"type:char(3);not null"`
	Status          string  `gorm:"type:varchar(16);not null"`
	GatewayStatus   string  `gorm:"type:varchar(32)"`
	FraudStatus     string  `gorm:"type:varchar(32)"`
	TransactionID   string  `gorm:"type:varchar(128)"`
	PaymentMethod   string  `gorm:"type:varchar(64)"`
	TransactionTime *time.Time
	SettlementTime  *time.Time
	SnapToken       string `gorm:"type:varchar(255)"`
	RedirectURL     string `gorm:"type:text"`
	RawPayload      datatypes.JSON
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime:false"`
	Version         int64     `gorm:"not null"`
}

func (paymentModel) TableName() string { return "payments" }

type outboxModel struct {
	ID            string `gorm:"type:varchar(64);primaryKey"`
	Name          string `gorm:"type:varchar(128);not null"`
	Aggregate     string `gorm:"type:varchar(64);not null"`
	Payload       []byte `gorm:"not null"`
	Headers       datatypes.JSONType[map[string]string]
	OccurredAt    time.Time `gorm:"not null"`
	State         string    `gorm:"type:varchar(16);not null;index:idx_outbox_due,priority:1"`
	Attempts      int       `gorm:"not null"`
	NextAttemptAt time.Time `gorm:"not null;index:idx_outbox_due,priority:2"`
	ClaimedBy     string    `gorm:"type:varchar(64)"`
	ClaimedAt     *time.Time
	SentAt        *time.Time
	LastError     string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (outboxModel) TableName() string { return "outbox_events" }

type idempotencyModel struct {
	Key          string `gorm:"column:idempotency_key;type:varchar(255);primaryKey"`
	Payload      []byte
	ErrorKind    string    `gorm:"type:varchar(32)"`
	ErrorCode    string    `gorm:"type:varchar(64)"`
	ErrorMessage string    `gorm:"type:text"`
	OccurredAt   time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
}

func (idempotencyModel) TableName() string { return "idempotency_keys" }

type inboxModel struct {
	EventID    string    `gorm:"type:varchar(64);primaryKey"`
	Consumer   string    `gorm:"type:varchar(64);primaryKey"`
	ReceivedAt time.Time `gorm:"not null"`
}

func (inboxModel) TableName() string { return "inbox_events" }
