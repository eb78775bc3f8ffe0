package commission

import (
	"github.com/tabimed/partnerpay/internal/commission/repository"
	"github.com/tabimed/partnerpay/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
