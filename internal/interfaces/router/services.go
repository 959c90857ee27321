package router

import (
	"cdv-engine/internal/application/allocation"
	"cdv-engine/internal/application/assignment"
	"cdv-engine/internal/application/certificates"
	"cdv-engine/internal/application/documents"
	"cdv-engine/internal/application/investors"
	"cdv-engine/internal/application/ledger"
	"cdv-engine/internal/application/notifications"
	"cdv-engine/internal/application/pool"
	"cdv-engine/internal/config"
	"cdv-engine/internal/metrics"

	"gorm.io/gorm"
)

// Services is the application layer wired from config. The HTTP app and the
// batch jobs share it.
type Services struct {
	Ledger       *ledger.Service
	Pool         *pool.Service
	Allocation   *allocation.Service
	Certificates *certificates.Service
	Investors    *investors.Service
	Coordinator  *assignment.Coordinator
	Documents    *documents.Service
}

// NewServices builds every service on db. m may be nil.
func NewServices(cfg *config.Config, db *gorm.DB, m *metrics.Metrics) *Services {
	cdv := cfg.CDV
	led := &ledger.Service{
		DB:                      db,
		Bundle:                  cdv.Bundle,
		UnitPrice:               cdv.UnitPrice,
		CO2PerQuotaKg:           cdv.CO2PerQuotaKg,
		DefaultMaturationMonths: cdv.DefaultMaturationMonths,
		Metrics:                 m,
		MaxRetries:              cdv.MaxRetries,
	}
	certs := &certificates.Service{DB: db, Metrics: m, MaxRetries: cdv.MaxRetries}
	return &Services{
		Ledger:       led,
		Pool:         &pool.Service{DB: db, Bundle: cdv.Bundle, Metrics: m, MaxRetries: cdv.MaxRetries},
		Allocation:   &allocation.Service{DB: db, Metrics: m, MaxRetries: cdv.MaxRetries},
		Certificates: certs,
		Investors:    &investors.Service{DB: db},
		Coordinator: &assignment.Coordinator{
			Ledger: led,
			Dispatcher: &notifications.BrevoDispatcher{
				APIKey:    cfg.SendinblueAPIKey,
				MailFrom:  cfg.MailFrom,
				PortalURL: cfg.InvestorPortalURL,
			},
			Strict: cdv.StrictRangeAssignment,
		},
		Documents: &documents.Service{
			DB:            db,
			Ledger:        led,
			Certificates:  certs,
			PublicBaseURL: cfg.PublicValidationURL,
		},
	}
}
