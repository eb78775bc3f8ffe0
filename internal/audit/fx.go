package audit

import (
	"github.com/tabimed/partnerpay/internal/audit/repository"
	"github.com/tabimed/partnerpay/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
