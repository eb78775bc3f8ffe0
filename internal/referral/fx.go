package referral

import (
	"github.com/tabimed/partnerpay/internal/referral/repository"
	"github.com/tabimed/partnerpay/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
