package report

import (
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/report/cache"
	"github.com/smallbiznis/billbook/internal/report/repository"
	"github.com/smallbiznis/billbook/internal/report/service"
	"go.uber.org/fx"
)

var Module = fx.Module("report.service",
	fx.Provide(cache.NewClient),
	fx.Provide(cache.Provide),
	fx.Provide(func(c *cache.Cache) invoicedomain.StatsInvalidator { return c }),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
