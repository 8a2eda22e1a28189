package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/config"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/money"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("record not found")

type Storage struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New wraps an already opened connection.
func New(conn *gorm.DB, log *logrus.Logger) *Storage {
	return &Storage{conn: conn, log: log}
}

func Connect(cfg *config.Configuration, log *logrus.Logger) (*Storage, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC connect_timeout=5",
		cfg.DbHost, cfg.DbUser, cfg.DbPass, cfg.DbName, cfg.DbPort,
	)

	logLevel := logger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		logLevel = logger.Info
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.WithError(err).Error("gorm open failed")
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		log.WithError(err).Error("get sql DB failed")
		return nil, err
	}
	for i := 0; i < 12; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		pingErr := sqlDB.PingContext(ctx)
		cancel()
		if pingErr == nil {
			break
		}
		log.WithFields(logrus.Fields{
			"attempt": i + 1, "host": cfg.DbHost, "port": cfg.DbPort,
		}).Warn("postgres not ready, retrying…")
		if i == 11 {
			log.WithError(pingErr).Error("postgres ping failed")
			return nil, pingErr
		}
		time.Sleep(time.Second * time.Duration(i+1))
	}

	log.WithFields(logrus.Fields{
		"host": cfg.DbHost, "port": cfg.DbPort, "user": cfg.DbUser, "db": cfg.DbName,
	}).Info("connected to PostgreSQL")

	s := New(conn, log)
	if cfg.AutoMigrate {
		if err := s.Migrate(); err != nil {
			log.WithError(err).Error("auto migrate failed")
			return nil, err
		}
	}
	return s, nil
}

func (s *Storage) Conn() *gorm.DB {
	return s.conn
}

func (s *Storage) Migrate() error {
	return s.conn.AutoMigrate(&Pass{}, &Order{})
}

func (s *Storage) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var order Order
	if err := s.conn.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

type NewOrder struct {
	MerchantID int64
	SKU        string
	Chain      string
	ToAddress  string
	AmountNano decimal.Decimal
}

// CreateOrder inserts a paying order and stamps its memo from the generated
// id. Both writes share one transaction so no order is ever visible without
// a memo. A non-nil prepare runs last inside the same transaction; its error
// rolls the order back.
func (s *Storage) CreateOrder(ctx context.Context, in NewOrder, prepare func(*Order) error) (*Order, error) {
	order := &Order{
		MerchantID: in.MerchantID,
		SKU:        in.SKU,
		Chain:      in.Chain,
		AmountNano: in.AmountNano,
		Status:     StatusPaying,
	}
	if in.ToAddress != "" {
		to := in.ToAddress
		order.ToAddress = &to
	}

	err := s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		memo := money.BuildMemo(order.ID)
		if err := tx.Model(order).Update("memo", memo).Error; err != nil {
			return err
		}
		order.Memo = &memo
		if prepare != nil {
			return prepare(order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkOrderPaid performs the terminal paying -> paid write. It only applies
// while the row is in neither terminal state and reports whether this call
// won.
func (s *Storage) MarkOrderPaid(ctx context.Context, id int64, upd PaidUpdate) (bool, error) {
	values := map[string]interface{}{
		"status":       StatusPaid,
		"tx":           upd.Tx,
		"receipt_url":  upd.ReceiptURL,
		"confirmed_at": upd.ConfirmedAt,
		"updated_at":   upd.ConfirmedAt,
	}
	if upd.From != "" {
		values["from_address"] = upd.From
	}

	res := s.conn.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND status NOT IN ?", id, []OrderStatus{StatusPaid, StatusFailed}).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Storage) GetPassBySKU(ctx context.Context, sku string) (*Pass, error) {
	var pass Pass
	if err := s.conn.WithContext(ctx).
		First(&pass, "sku = ? AND active = ?", sku, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pass, nil
}

func (s *Storage) SavePass(ctx context.Context, pass *Pass) error {
	return s.conn.WithContext(ctx).Save(pass).Error
}
