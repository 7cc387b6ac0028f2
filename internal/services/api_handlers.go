package services

import (
	"bytes"
	"errors"
	"image/png"
	"time"

	"github.com/gofiber/fiber/v2"

	"aiframe/internal/clients/fusionbrain"
	"aiframe/types"
)

func (a *Api) Health() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		return ctx.Status(fiber.StatusOK).JSON(types.HealthResponse{
			Status:    fiber.StatusOK,
			TimeStamp: time.Now().Unix(),
		})
	}
}

func (a *Api) Status() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		c := a.gen.Client()

		return ctx.Status(fiber.StatusOK).JSON(types.StatusResponse{
			Status:     c.Status(),
			State:      c.State().String(),
			JobID:      c.JobID(),
			ModelID:    c.ModelID(),
			Styles:     c.StyleList(),
			Generation: a.gen.Canvas().Generation(),
			AutoPeriod: int64(a.gen.AutoPeriod() / time.Second),
		})
	}
}

func (a *Api) Styles() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(types.StylesResponse{Styles: a.gen.Client().StyleList()})
	}
}

func (a *Api) RefreshStyles() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		logger := HttpLogger("refresh_styles", ctx, a.gen)

		styles, err := a.gen.RefreshStyles(ctx.UserContext())
		if err != nil {
			logger.Warn("style refresh failed", "err", err)
			return ctx.Status(statusFor(err)).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "failed to refresh styles",
			})
		}

		return ctx.Status(fiber.StatusOK).JSON(types.StylesResponse{Styles: styles})
	}
}

func (a *Api) Generate() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		logger := HttpLogger("generate", ctx, a.gen)

		var requestBody types.GenerateRequest
		if len(ctx.Body()) > 0 {
			if err := ctx.BodyParser(&requestBody); err != nil {
				return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
					Error:   err.Error(),
					Message: "invalid body",
				})
			}
		}
		if requestBody.Width < 0 || requestBody.Height < 0 {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "width and height must not be negative",
				Message: "invalid size",
			})
		}

		job, err := a.gen.Generate(ctx.UserContext(), GenerationInput{
			Prompt:         requestBody.Prompt,
			NegativePrompt: requestBody.NegativePrompt,
			Style:          requestBody.Style,
			StyleIndex:     requestBody.StyleIndex,
			Width:          requestBody.Width,
			Height:         requestBody.Height,
		})
		if err != nil {
			logger.Warn("generation rejected", "err", err)
			return ctx.Status(statusFor(err)).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: a.gen.Client().Status(),
			})
		}

		logger.Info("generation accepted", "job", job)
		return ctx.Status(fiber.StatusAccepted).JSON(types.GenerateResponse{
			JobID:  job,
			Status: a.gen.Client().Status(),
		})
	}
}

func (a *Api) Frame() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		var buf bytes.Buffer
		if err := png.Encode(&buf, a.gen.Canvas().Snapshot()); err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "failed to encode frame",
			})
		}

		ctx.Set(fiber.HeaderContentType, "image/png")
		ctx.Set(fiber.HeaderCacheControl, "no-store")
		ctx.Response().SetBodyRaw(buf.Bytes())
		return nil
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fusionbrain.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, fusionbrain.ErrWrongConfig), errors.Is(err, fusionbrain.ErrNoCredentials), errors.Is(err, ErrNoPrompt):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusBadGateway
	}
}
