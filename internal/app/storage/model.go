package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusCreated OrderStatus = "created"
	StatusPaying  OrderStatus = "paying"
	StatusPaid    OrderStatus = "paid"
	StatusFailed  OrderStatus = "failed"
)

type Order struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	MerchantID  int64           `gorm:"not null" json:"merchantId"`
	SKU         string          `gorm:"column:sku;type:varchar(64);not null;index:idx_orders_sku" json:"sku"`
	Chain       string          `gorm:"type:varchar(32);not null" json:"chain"`
	ToAddress   *string         `gorm:"column:to_address" json:"toAddress,omitempty"`
	AmountNano  decimal.Decimal `gorm:"column:amount_nano;type:numeric(40,0)" json:"amountNano"`
	Memo        *string         `json:"memo,omitempty"`
	Status      OrderStatus     `gorm:"type:varchar(16);not null;default:'created'" json:"status"`
	FromAddress *string         `gorm:"column:from_address;type:varchar(128)" json:"from,omitempty"`
	Tx          *string         `gorm:"index:idx_orders_tx" json:"tx,omitempty"`
	ReceiptURL  *string         `gorm:"column:receipt_url" json:"receiptUrl,omitempty"`
	ConfirmedAt *time.Time      `json:"confirmedAt,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Pass is a sellable item; PriceNano is in the smallest unit of Chain.
type Pass struct {
	ID         int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	MerchantID int64            `gorm:"not null" json:"merchantId"`
	SKU        string           `gorm:"column:sku;type:varchar(64);not null;uniqueIndex" json:"sku"`
	Title      string           `gorm:"type:varchar(200);not null" json:"title"`
	Active     bool             `gorm:"not null" json:"active"`
	Chain      string           `gorm:"type:varchar(16)" json:"chain"`
	PriceNano  *decimal.Decimal `gorm:"column:price_nano;type:numeric(40,0)" json:"priceNano,omitempty"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"createdAt"`
}

// PaidUpdate is the single terminal write of a confirmed order.
type PaidUpdate struct {
	Tx          string
	From        string
	ReceiptURL  string
	ConfirmedAt time.Time
}

func (o *Order) AmountUnits() string {
	return o.AmountNano.String()
}

func (o *Order) MemoText() string {
	if o.Memo == nil {
		return ""
	}
	return *o.Memo
}

func (o *Order) Recipient() string {
	if o.ToAddress == nil {
		return ""
	}
	return *o.ToAddress
}
