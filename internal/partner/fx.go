package partner

import (
	"github.com/tabimed/partnerpay/internal/partner/repository"
	"github.com/tabimed/partnerpay/internal/partner/service"
	"go.uber.org/fx"
)

var Module = fx.Module("partner.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
