package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/zatca-api/internal/application/einvoice"
	infrapdf "github.com/jhoicas/zatca-api/internal/infrastructure/pdf"
	"github.com/jhoicas/zatca-api/internal/infrastructure/postgres"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	"github.com/jhoicas/zatca-api/internal/infrastructure/zatca/signer"
	httpRouter "github.com/jhoicas/zatca-api/internal/interfaces/http"
	"github.com/jhoicas/zatca-api/pkg/config"
	"github.com/jhoicas/zatca-api/pkg/jwt"
	"github.com/jhoicas/zatca-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
		App:   cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Bool("zatca_live", cfg.Zatca.Live).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	deviceRepo := postgres.NewDeviceRepository(pool)
	submissionRepo := postgres.NewSubmissionRepository(pool)

	// Pipeline de firma: builder → canonicalización/hash → XAdES → QR
	xmlBuilder := infrazatca.NewXMLBuilderService()
	hasher := infrazatca.NewHasherService()
	signerSvc := signer.NewSigningService(hasher)
	csrGen := infrazatca.NewCSRGeneratorService(cfg.Zatca.Live)
	apiClient := infrazatca.NewHTTPAPIClient(cfg.Zatca.Live, time.Duration(cfg.Zatca.TimeoutSeconds)*time.Second)

	deviceUC := einvoice.NewDeviceUseCase(deviceRepo, csrGen, apiClient, xmlBuilder, signerSvc, log)
	invoiceUC := einvoice.NewInvoiceUseCase(deviceRepo, submissionRepo, xmlBuilder, signerSvc, apiClient, log)

	// PDF: representación gráfica de la factura electrónica ZATCA
	pdfGenerator := infrapdf.NewMarotoPDFGenerator()

	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiration)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "ZATCA API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		DeviceUC:  deviceUC,
		InvoiceUC: invoiceUC,
		PDFGen:    pdfGenerator,
		JWT:       jwtManager,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
