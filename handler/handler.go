package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-session/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type ReplyUseCase interface {
	Reply(ctx context.Context, in usecase.ReplyInput) (usecase.ReplyOutput, error)
}

type Handler struct {
	uc ReplyUseCase
}

type replyRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(uc ReplyUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

// Handle serves POST /api/chat. The reply is returned as a bare JSON string.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := slog.With("correlation_id", correlationID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "METHOD_NOT_ALLOWED"}), nil
	}

	var body replyRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		logger.Warn("invalid request body", "err", err)
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: string(usecase.ErrorInvalidInput)}), nil
	}

	out, err := h.uc.Reply(ctx, usecase.ReplyInput{Message: body.Message})
	if err != nil {
		status, code := mapError(err)
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) {
			logger.Warn("reply failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
		} else {
			logger.Error("reply failed", "err", err)
		}
		return jsonResponse(status, correlationID, errorResponse{Error: code}), nil
	}

	logger.Info("reply served", "reply_len", len(out.Reply))
	return jsonResponse(http.StatusOK, correlationID, out.Reply), nil
}

func mapError(err error) (int, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidMessage:
		return http.StatusBadRequest, string(ucErr.Code)
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, string(ucErr.Code)
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(ucErr.Code)
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
