package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchaser is a registered buyer account, keyed by email.
type Purchaser struct {
	Email string `gorm:"primaryKey;size:320" json:"email"`
	Name  string `gorm:"size:200" json:"name"`
	// PasswordHash is an encoded argon2id hash and never leaves the server.
	PasswordHash string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Purchaser) TableName() string { return "purchasers" }

// Subject groups items for browsing. Key is derived from the subject code.
type Subject struct {
	Key     string `gorm:"primaryKey;size:100" json:"key"`
	Display string `gorm:"size:300" json:"display"`
}

func (Subject) TableName() string { return "subjects" }

// Item is a sellable file. Filename is relative to the store's files directory
// and may be shared by several items.
type Item struct {
	Title       string          `gorm:"primaryKey;size:300" json:"title"`
	Description string          `json:"desc"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2)" json:"price"`
	Subject     string          `gorm:"index;size:100" json:"subject"`
	Filename    string          `gorm:"index;size:300" json:"filename,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (Item) TableName() string { return "items" }

// Purchase is one ledger row. Rows are only ever appended.
type Purchase struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"-"`
	Account     string          `gorm:"index;size:320" json:"-"`
	Title       string          `gorm:"size:300" json:"title"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2)" json:"price"`
	Quantity    int             `json:"quantity"`
	InvoiceRef  string          `gorm:"size:300" json:"invoice"`
	PurchasedAt time.Time       `gorm:"index" json:"date"`
}

func (Purchase) TableName() string { return "purchases" }

// Setting is a server-owned key/value pair, such as the rotated admin secret.
type Setting struct {
	Key       string `gorm:"primaryKey;size:100"`
	Value     string
	UpdatedAt time.Time
}

func (Setting) TableName() string { return "settings" }

func allModels() []any {
	return []any{&Purchaser{}, &Subject{}, &Item{}, &Purchase{}, &Setting{}}
}
