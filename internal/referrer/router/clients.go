package router

import (
	"io"
	"net/http"
	"strconv"

	"github.com/SakuraBurst/rewardbot/internal/referrer/controller"
	"github.com/SakuraBurst/rewardbot/internal/referrer/database"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const proofImageField = "image_answer"

func (r *HttpRouter) GetOrCreateClient(ctx *fiber.Ctx) error {
	userID, ok := paramID(ctx, "user_id")
	if !ok {
		return badRequest(ctx)
	}
	var affiliateID *int64
	if raw := ctx.Query("affiliate"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return badRequest(ctx)
		}
		affiliateID = &id
	}
	client, created, err := r.controller.GetOrCreateClient(ctx.Context(), userID, affiliateID, ctx.Query("tg_username"))
	if errors.Is(err, controller.ErrAffiliateNotExist) {
		r.appLogger.Error("controller.GetOrCreateClient failed: ", zap.Error(err))
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Affiliate does not exist"})
	}
	if errors.Is(err, types.ErrFieldTooLong) {
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	if err != nil {
		r.appLogger.Error("controller.GetOrCreateClient failed: ", zap.Error(err))
		return internalError(ctx)
	}
	if created {
		ctx.Status(http.StatusCreated)
	} else {
		ctx.Status(http.StatusOK)
	}
	return ctx.JSON(client)
}

func (r *HttpRouter) UpdateClient(ctx *fiber.Ctx) error {
	userID, ok := paramID(ctx, "user_id")
	if !ok {
		return badRequest(ctx)
	}
	profile := &types.ClientProfile{}
	if err := ctx.BodyParser(profile); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	client, err := r.controller.UpdateClient(ctx.Context(), userID, profile)
	if errors.Is(err, database.ErrClientNotExist) {
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Client does not exist"})
	}
	if errors.Is(err, types.ErrFieldTooLong) {
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	if err != nil {
		r.appLogger.Error("controller.UpdateClient failed: ", zap.Error(err))
		return internalError(ctx)
	}
	ctx.Status(http.StatusOK)
	return ctx.JSON(client)
}

func (r *HttpRouter) ListAvailableTasks(ctx *fiber.Ctx) error {
	userID, ok := paramID(ctx, "user_id")
	if !ok {
		return badRequest(ctx)
	}
	tasks, err := r.controller.ListAvailableTasks(ctx.Context(), userID)
	if errors.Is(err, database.ErrClientNotExist) {
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Client does not exist"})
	}
	if err != nil {
		r.appLogger.Error("controller.ListAvailableTasks failed: ", zap.Error(err))
		return internalError(ctx)
	}
	if tasks == nil {
		tasks = []*types.Task{}
	}
	return ctx.JSON(tasks)
}

func (r *HttpRouter) OpenTask(ctx *fiber.Ctx) error {
	userID, ok := paramID(ctx, "user_id")
	if !ok {
		return badRequest(ctx)
	}
	taskID, ok := paramID(ctx, "task_id")
	if !ok {
		return badRequest(ctx)
	}
	task, userTask, err := r.controller.OpenTask(ctx.Context(), userID, taskID)
	if errors.Is(err, database.ErrClientNotExist) || errors.Is(err, database.ErrTaskNotExist) {
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Client or task does not exist"})
	}
	if err != nil {
		r.appLogger.Error("controller.OpenTask failed: ", zap.Error(err))
		return internalError(ctx)
	}
	return ctx.JSON(fiber.Map{"task": task, "user_task": userTask})
}

// SubmitProof takes either a json body or a multipart form with the image in image_answer.
func (r *HttpRouter) SubmitProof(ctx *fiber.Ctx) error {
	request := &types.ProofRequest{}
	if err := ctx.BodyParser(request); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	if request.ClientID == 0 || request.TaskID == 0 {
		return badRequest(ctx)
	}
	if file, err := ctx.FormFile(proofImageField); err == nil {
		f, err := file.Open()
		if err != nil {
			r.appLogger.Error("file.Open failed: ", zap.Error(err))
			return internalError(ctx)
		}
		request.Image, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			r.appLogger.Error("io.ReadAll failed: ", zap.Error(err))
			return internalError(ctx)
		}
		request.ImageType = file.Header.Get(fiber.HeaderContentType)
	}

	outcome, err := r.controller.SubmitProof(ctx.Context(), request)
	switch {
	case errors.Is(err, database.ErrClientNotExist):
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Client does not exist"})
	case errors.Is(err, database.ErrTaskNotExist):
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Task does not exist"})
	case errors.Is(err, controller.ErrTaskAlreadyCompleted):
		ctx.Status(http.StatusConflict)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Task already completed"})
	case errors.Is(err, controller.ErrTooManySubmissions):
		ctx.Status(http.StatusTooManyRequests)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Too many submissions, try again later"})
	case errors.Is(err, controller.ErrEmptyProof):
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Proof is empty"})
	case errors.Is(err, controller.ErrProofTooLong):
		ctx.Status(http.StatusBadRequest)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Proof is too long"})
	case err != nil:
		r.appLogger.Error("controller.SubmitProof failed: ", zap.Error(err))
		return internalError(ctx)
	}
	if outcome.Status == types.SubmissionRejected {
		ctx.Status(http.StatusForbidden)
	} else {
		ctx.Status(http.StatusCreated)
	}
	return ctx.JSON(outcome)
}

func (r *HttpRouter) RequestWithdrawal(ctx *fiber.Ctx) error {
	request := &types.WithdrawalRequest{}
	if err := ctx.BodyParser(request); err != nil {
		r.appLogger.Error("ctx.BodyParser failed: ", zap.Error(err))
		return badRequest(ctx)
	}
	if request.ClientID == 0 {
		return badRequest(ctx)
	}
	order, err := r.controller.RequestWithdrawal(ctx.Context(), request)
	switch {
	case errors.Is(err, controller.ErrNotEnoughBalance):
		ctx.Status(http.StatusNotAcceptable)
		return ctx.JSON(fiber.Map{"status": "error", "message": controller.ErrNotEnoughBalance.Error()})
	case errors.Is(err, controller.ErrTooSmallSum):
		ctx.Status(http.StatusNotAcceptable)
		return ctx.JSON(fiber.Map{"status": "error", "message": controller.ErrTooSmallSum.Error()})
	case errors.Is(err, controller.ErrInvalidWithdrawalSum):
		ctx.Status(http.StatusNotAcceptable)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Invalid sum"})
	case errors.Is(err, database.ErrClientNotExist):
		ctx.Status(http.StatusNotFound)
		return ctx.JSON(fiber.Map{"status": "error", "message": "Client does not exist"})
	case err != nil:
		r.appLogger.Error("controller.RequestWithdrawal failed: ", zap.Error(err))
		return internalError(ctx)
	}
	ctx.Status(http.StatusCreated)
	return ctx.JSON(order)
}
