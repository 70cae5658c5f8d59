package router

import (
	"net/http"

	"github.com/SakuraBurst/rewardbot/internal/referrer/controller"
	"github.com/SakuraBurst/rewardbot/internal/referrer/database"
	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/settings"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var taskConfigErrors = []error{
	types.ErrConflictingPolicies,
	types.ErrValidatorRequired,
	types.ErrChainRequired,
	types.ErrBadExpression,
	types.ErrBadPrice,
	types.ErrBadProofType,
	types.ErrFieldTooLong,
	database.ErrValidatorNotExist,
}

// taskConfigError returns the configuration error wrapped in err, if any.
func taskConfigError(err error) error {
	for _, e := range taskConfigErrors {
		if errors.Is(err, e) {
			return e
		}
	}
	return nil
}

func (r *HttpRouter) Login(ctx *fiber.Ctx) error {
	request := &types.AdminRequest{}
	err := ctx.BodyParser(request)
	if err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	if request.UserName == "" || request.Password == "" {
		return badRequest(ctx)
	}
	token, err := r.controller.AuthorizeAdmin(ctx.Context(), request)
	if errors.Is(err, controller.ErrInvalidCredentials) {
		r.appLogger.Error("controller.AuthorizeAdmin failed: ", zap.Error(err))
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Неправильный логин или пароль"})
	}
	if err != nil {
		r.appLogger.Error("controller.AuthorizeAdmin failed: ", zap.Error(err))
		return internalError(ctx)
	}
	ctx.Status(http.StatusOK)
	return ctx.JSON(fiber.Map{"status": "success", "message": token})
}

func (r *HttpRouter) CreateTask(ctx *fiber.Ctx) error {
	task := &types.Task{}
	if err := ctx.BodyParser(task); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	id, err := r.controller.CreateTask(ctx.Context(), task)
	if cfgErr := taskConfigError(err); cfgErr != nil {
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": cfgErr.Error()})
	}
	if err != nil {
		r.appLogger.Error("controller.CreateTask failed: ", zap.Error(err))
		return internalError(ctx)
	}
	ctx.Status(http.StatusCreated)
	return ctx.JSON(fiber.Map{"status": "success", "id": id})
}

func (r *HttpRouter) UpdateTask(ctx *fiber.Ctx) error {
	taskID, ok := paramID(ctx, "id")
	if !ok {
		return badRequest(ctx)
	}
	task := &types.Task{}
	if err := ctx.BodyParser(task); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	task.ID = taskID
	err := r.controller.UpdateTask(ctx.Context(), task)
	if cfgErr := taskConfigError(err); cfgErr != nil {
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": cfgErr.Error()})
	}
	if errors.Is(err, database.ErrTaskNotExist) {
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Task does not exist"})
	}
	if err != nil {
		r.appLogger.Error("controller.UpdateTask failed: ", zap.Error(err))
		return internalError(ctx)
	}
	ctx.Status(http.StatusOK)
	return ctx.JSON(fiber.Map{"status": "success"})
}

func (r *HttpRouter) CreateValidator(ctx *fiber.Ctx) error {
	v := &types.Validator{}
	if err := ctx.BodyParser(v); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	if v.Name == "" || v.Expression == "" {
		return badRequest(ctx)
	}
	id, err := r.controller.CreateValidator(ctx.Context(), v)
	if cfgErr := taskConfigError(err); cfgErr != nil {
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": cfgErr.Error()})
	}
	if err != nil {
		r.appLogger.Error("controller.CreateValidator failed: ", zap.Error(err))
		return internalError(ctx)
	}
	ctx.Status(http.StatusCreated)
	return ctx.JSON(fiber.Map{"status": "success", "id": id})
}

func (r *HttpRouter) AddContract(ctx *fiber.Ctx) error {
	contract := &types.Contract{}
	if err := ctx.BodyParser(contract); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	if contract.Chain == "" || contract.Address == "" {
		return badRequest(ctx)
	}
	id, err := r.controller.AddContract(ctx.Context(), contract)
	if errors.Is(err, types.ErrFieldTooLong) {
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	if errors.Is(err, database.ErrContractAlreadyExist) {
		ctx.Status(http.StatusConflict)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Contract already exists"})
	}
	if err != nil {
		r.appLogger.Error("controller.AddContract failed: ", zap.Error(err))
		return internalError(ctx)
	}
	ctx.Status(http.StatusCreated)
	return ctx.JSON(fiber.Map{"status": "success", "id": id})
}

func (r *HttpRouter) SetUserTaskCompleted(ctx *fiber.Ctx) error {
	id, ok := paramID(ctx, "id")
	if !ok {
		return badRequest(ctx)
	}
	request := &types.UserTaskRequest{}
	if err := ctx.BodyParser(request); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	userTask, err := r.controller.SetUserTaskCompleted(ctx.Context(), id, request.Completed)
	if errors.Is(err, database.ErrUserTaskNotExist) {
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "User task does not exist"})
	}
	if errors.Is(err, ledger.ErrNegativeBalance) {
		ctx.Status(http.StatusNotAcceptable)
		return ctx.JSON(fiber.Map{"status": "error", "message": controller.ErrNotEnoughBalance.Error()})
	}
	if err != nil {
		r.appLogger.Error("controller.SetUserTaskCompleted failed: ", zap.Error(err))
		return internalError(ctx)
	}
	return ctx.JSON(userTask)
}

func (r *HttpRouter) ListWithdrawalOrders(ctx *fiber.Ctx) error {
	var payed *bool
	switch ctx.Query("payed") {
	case "":
	case "true":
		v := true
		payed = &v
	case "false":
		v := false
		payed = &v
	default:
		return badRequest(ctx)
	}
	orders, err := r.controller.ListWithdrawalOrders(ctx.Context(), payed)
	if err != nil {
		r.appLogger.Error("controller.ListWithdrawalOrders failed: ", zap.Error(err))
		return internalError(ctx)
	}
	if orders == nil {
		orders = []*types.WithdrawalOrder{}
	}
	return ctx.JSON(orders)
}

func (r *HttpRouter) MarkWithdrawalPayed(ctx *fiber.Ctx) error {
	id, ok := paramID(ctx, "id")
	if !ok {
		return badRequest(ctx)
	}
	err := r.controller.MarkWithdrawalPayed(ctx.Context(), id)
	if errors.Is(err, database.ErrWithdrawalOrderNotExist) {
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Withdrawal order does not exist"})
	}
	if err != nil {
		r.appLogger.Error("controller.MarkWithdrawalPayed failed: ", zap.Error(err))
		return internalError(ctx)
	}
	return ctx.JSON(fiber.Map{"status": "success"})
}

func (r *HttpRouter) GetSettings(ctx *fiber.Ctx) error {
	return ctx.JSON(r.controller.GetSettings())
}

func (r *HttpRouter) UpdateSettings(ctx *fiber.Ctx) error {
	request := types.SiteSettings{}
	if err := ctx.BodyParser(&request); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	err := r.controller.UpdateSettings(ctx.Context(), request)
	if errors.Is(err, settings.ErrNegativeSetting) {
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": settings.ErrNegativeSetting.Error()})
	}
	if err != nil {
		r.appLogger.Error("controller.UpdateSettings failed: ", zap.Error(err))
		return internalError(ctx)
	}
	return ctx.JSON(r.controller.GetSettings())
}

func (r *HttpRouter) Broadcast(ctx *fiber.Ctx) error {
	request := &types.BroadcastRequest{}
	if err := ctx.BodyParser(request); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	if request.Message == "" {
		return badRequest(ctx)
	}
	sent, err := r.controller.Broadcast(ctx.Context(), request.Message)
	if err != nil {
		r.appLogger.Error("controller.Broadcast failed: ", zap.Error(err))
		return internalError(ctx)
	}
	return ctx.JSON(fiber.Map{"status": "success", "sent": sent})
}
