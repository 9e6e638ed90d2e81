package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/database"
	handlers "github.com/tech-arch1tect/payslip-auth/handlers/magiclink"
	"github.com/tech-arch1tect/payslip-auth/middleware/ratelimit"
	"github.com/tech-arch1tect/payslip-auth/openapi"
	"github.com/tech-arch1tect/payslip-auth/server"
	"github.com/tech-arch1tect/payslip-auth/services/accounts"
	"github.com/tech-arch1tect/payslip-auth/services/jwt"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"github.com/tech-arch1tect/payslip-auth/services/magiclink"
	"github.com/tech-arch1tect/payslip-auth/services/mail"
	"github.com/tech-arch1tect/payslip-auth/services/revocation"
	"github.com/tech-arch1tect/payslip-auth/session"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type AppBuilder struct {
	config      *config.Config
	mailer      magiclink.Mailer
	sessionOpts *session.Options
	fxOptions   []fx.Option
	errors      []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithMailer(mailer magiclink.Mailer) *AppBuilder {
	if mailer == nil {
		b.addError("mailer cannot be nil")
		return b
	}
	b.mailer = mailer
	return b
}

func (b *AppBuilder) WithSessionStore(opts *session.Options) *AppBuilder {
	b.sessionOpts = opts
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.config == nil && len(b.errors) == 0 {
		b.WithAutoConfig()
	}
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("configuration errors: %w", errors.Join(b.errors...))
	}

	app := &App{config: b.config}

	options := b.buildFxOptions()
	options = append(options, fx.Populate(&app.logger, &app.db, &app.server))

	app.fx = fx.New(options...)
	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to assemble application: %w", err)
	}

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, errors.New(msg))
}

func (b *AppBuilder) buildFxOptions() []fx.Option {
	options := []fx.Option{
		fx.NopLogger,
		config.NewProvider(b.config),
		logging.Module,
		fx.Supply(database.WithModels(&magiclink.MagicLinkToken{}, &accounts.Account{})),
		database.Module,
		accounts.Module,
		revocation.Module,
		jwt.Options,
		fx.Provide(fx.Annotate(revocationCleaner, fx.ResultTags(`group:"cleaners"`))),
		session.Module,
		ratelimit.Module,
		magiclink.Module,
		handlers.Module,
		fx.Provide(provideDocs),
		server.NewProvider(),
	}

	if mailer := b.mailer; mailer != nil {
		options = append(options, fx.Provide(func() magiclink.Mailer { return mailer }))
	} else {
		options = append(options,
			mail.Module,
			fx.Provide(func(m *mail.Service) magiclink.Mailer { return m }),
		)
	}

	if b.sessionOpts != nil {
		options = append(options, fx.Supply(b.sessionOpts))
	}

	options = append(options, b.fxOptions...)
	options = append(options, fx.Invoke(registerRoutes))

	return options
}

func revocationCleaner(svc *revocation.Service) magiclink.Cleaner {
	return svc
}

func provideDocs(cfg *config.Config) *openapi.OpenAPI {
	if !cfg.OpenAPI.Enabled {
		return nil
	}
	return openapi.New(cfg.App.Name+" authentication", cfg.OpenAPI.Version).
		Description("Passwordless sign-in for the payslip manager").
		Server(cfg.App.URL, cfg.App.Environment)
}

func registerRoutes(srv *server.Server, db *gorm.DB, handler *handlers.Handler, sessions *session.Manager, limiter ratelimit.Store, docs *openapi.OpenAPI) {
	srv.Health(func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})

	handler.RegisterRoutes(srv.Echo(), handlers.RouteOptions{
		Sessions: sessions,
		Limiter:  limiter,
		Docs:     docs,
	})

	if docs != nil {
		srv.Get("/openapi.json", docs.JSONHandler())
		srv.Get("/openapi.yaml", docs.YAMLHandler())
	}
}
