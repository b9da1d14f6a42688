// Package fee resolves the active per-person fee and quotes a group's
// payment obligation.
package fee

import (
	"context"
	"errors"
	"fmt"

	"entrypass/internal/registration/models"
	dErrors "entrypass/pkg/domain-errors"
	"entrypass/pkg/platform/sentinel"
)

// SettingStore reads the fee configuration history. LatestFeeSetting returns
// the row with the newest EnabledAt, enabled or not.
type SettingStore interface {
	LatestFeeSetting(ctx context.Context) (*models.FeeSetting, error)
}

// Active is the fee currently in force.
type Active struct {
	Amount  models.Amount `json:"amount_per_person"`
	Enabled bool          `json:"enabled"`
}

// Quote is the payment obligation of a group, fixed at registration time.
type Quote struct {
	PerPerson models.Amount
	Total     models.Amount
	Method    models.PaymentMethod
	Status    models.PaymentStatus
}

type Calculator struct {
	settings        SettingStore
	minOnlineAmount models.Amount
}

func NewCalculator(settings SettingStore, minOnlineAmount models.Amount) *Calculator {
	return &Calculator{settings: settings, minOnlineAmount: minOnlineAmount}
}

// ActiveFee returns the latest setting when it is enabled, otherwise a disabled zero fee.
func (c *Calculator) ActiveFee(ctx context.Context) (Active, error) {
	setting, err := c.settings.LatestFeeSetting(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Active{}, nil
		}
		return Active{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fee setting")
	}
	if !setting.Enabled {
		return Active{}, nil
	}
	return Active{Amount: setting.AmountPerPerson, Enabled: true}, nil
}

// ComputeTotal is zero when collection is disabled.
func ComputeTotal(active Active, groupSize int) (models.Amount, error) {
	if !active.Enabled {
		return 0, nil
	}
	return active.Amount.Times(groupSize)
}

// Quote applies the method rules: a disabled fee forces NOT_REQUIRED whatever
// was requested; an enabled fee needs CASH or ONLINE, and ONLINE needs the
// total to reach the online minimum.
func (c *Calculator) Quote(active Active, groupSize int, requested models.PaymentMethod) (Quote, error) {
	if groupSize <= 0 {
		return Quote{}, dErrors.New(dErrors.CodeValidation, "group size must be positive")
	}
	if !active.Enabled {
		return Quote{Method: models.PaymentNotRequired, Status: models.StatusNotRequired}, nil
	}

	total, err := ComputeTotal(active, groupSize)
	if err != nil {
		return Quote{}, err
	}
	switch requested {
	case models.PaymentCash:
	case models.PaymentOnline:
		if total < c.minOnlineAmount {
			return Quote{}, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("online payment requires a total of at least %s; choose CASH", c.minOnlineAmount))
		}
	default:
		return Quote{}, dErrors.New(dErrors.CodeValidation, "payment_method must be CASH or ONLINE")
	}
	return Quote{
		PerPerson: active.Amount,
		Total:     total,
		Method:    requested,
		Status:    requested.InitialStatus(),
	}, nil
}

func (c *Calculator) MinOnlineAmount() models.Amount {
	return c.minOnlineAmount
}
