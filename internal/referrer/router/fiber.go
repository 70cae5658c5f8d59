package router

import (
	"context"
	"net/http"
	"strconv"

	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/SakuraBurst/rewardbot/internal/referrer/router/middleware"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type controllerService interface {
	GetOrCreateClient(ctx context.Context, userID int64, affiliateID *int64, tgUsername string) (*types.Client, bool, error)
	UpdateClient(ctx context.Context, userID int64, profile *types.ClientProfile) (*types.Client, error)
	ListAvailableTasks(ctx context.Context, userID int64) ([]*types.Task, error)
	OpenTask(ctx context.Context, userID, taskID int64) (*types.Task, *types.UserTask, error)
	SubmitProof(ctx context.Context, request *types.ProofRequest) (*types.SubmissionOutcome, error)
	RequestWithdrawal(ctx context.Context, request *types.WithdrawalRequest) (*types.WithdrawalOrder, error)

	AuthorizeAdmin(ctx context.Context, request *types.AdminRequest) (string, error)
	CreateTask(ctx context.Context, task *types.Task) (int64, error)
	UpdateTask(ctx context.Context, task *types.Task) error
	CreateValidator(ctx context.Context, v *types.Validator) (int64, error)
	AddContract(ctx context.Context, c *types.Contract) (int64, error)
	SetUserTaskCompleted(ctx context.Context, id int64, completed bool) (*types.UserTask, error)
	ListWithdrawalOrders(ctx context.Context, payed *bool) ([]*types.WithdrawalOrder, error)
	MarkWithdrawalPayed(ctx context.Context, id int64) error
	GetSettings() types.SiteSettings
	UpdateSettings(ctx context.Context, s types.SiteSettings) error
	Broadcast(ctx context.Context, text string) (int, error)
	Close() error
}

type HttpRouter struct {
	controller controllerService
	*fiber.App
	appLogger *zap.Logger
	httpPort  string
}

const internalServerErrorMessage = "Произошла ошибка на сервере"
const badRequestMessage = "Неправильный формат данных или в них есть ошибка"

func (r *HttpRouter) Run() error {
	return r.App.Listen(":" + r.httpPort)
}

func (r *HttpRouter) Close() error {
	if err := r.controller.Close(); err != nil {
		r.appLogger.Error("controller.Close failed: ", zap.Error(err))
	}
	return r.App.Shutdown()
}

func paramID(ctx *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func badRequest(ctx *fiber.Ctx) error {
	ctx.Status(http.StatusBadRequest)
	return ctx.JSON(fiber.Map{"status": "error", "message": badRequestMessage})
}

func internalError(ctx *fiber.Ctx) error {
	ctx.Status(http.StatusInternalServerError)
	return ctx.JSON(fiber.Map{"status": "error", "message": internalServerErrorMessage})
}

func CreateRouter(c controllerService, cfg *config.Config, logger *zap.Logger) *HttpRouter {
	appLogger := logger.Named("app")
	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	r := &HttpRouter{controller: c, App: app, appLogger: appLogger, httpPort: cfg.HttpPort}
	api := r.Group("/api/v1")

	bot := api.Group("", middleware.BotToken(cfg.ApiToken))
	bot.Get("/clients/:user_id", r.GetOrCreateClient)
	bot.Put("/clients/:user_id", r.UpdateClient)
	bot.Get("/clients/:user_id/tasks", r.ListAvailableTasks)
	bot.Get("/clients/:user_id/tasks/:task_id", r.OpenTask)
	bot.Post("/proofs", r.SubmitProof)
	bot.Post("/withdrawals", r.RequestWithdrawal)

	api.Post("/admin/login", r.Login)
	admin := api.Group("/admin", middleware.Protected([]byte(cfg.JWTSecret)))
	admin.Post("/tasks", r.CreateTask)
	admin.Put("/tasks/:id", r.UpdateTask)
	admin.Post("/validators", r.CreateValidator)
	admin.Post("/contracts", r.AddContract)
	admin.Put("/user-tasks/:id", r.SetUserTaskCompleted)
	admin.Get("/withdrawals", r.ListWithdrawalOrders)
	admin.Post("/withdrawals/:id/payed", r.MarkWithdrawalPayed)
	admin.Get("/settings", r.GetSettings)
	admin.Put("/settings", r.UpdateSettings)
	admin.Post("/broadcast", r.Broadcast)
	return r
}
