package ledger

import (
	"github.com/tabimed/partnerpay/internal/ledger/repository"
	"github.com/tabimed/partnerpay/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
