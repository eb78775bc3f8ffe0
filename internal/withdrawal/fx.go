package withdrawal

import (
	"github.com/tabimed/partnerpay/internal/withdrawal/repository"
	"github.com/tabimed/partnerpay/internal/withdrawal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
