// internal/service/notification/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/service/notification/application"
	"ticketradar/internal/service/notification/domain"
)

const serviceName = "notification-service"

// ChannelHandler 通知通道配置的 HTTP 处理器。
type ChannelHandler struct {
	service *application.ChannelService
}

func NewChannelHandler(service *application.ChannelService) *ChannelHandler {
	return &ChannelHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ChannelHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/channels", h.channelsHandler)
	mux.HandleFunc("/api/v1/channels/", h.channelHandler)
}

func (h *ChannelHandler) channelsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.Channels")
	defer span.End()
	r = r.WithContext(ctx)

	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	switch r.Method {
	case http.MethodGet:
		channels, err := h.service.List(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, channels)
	case http.MethodPost:
		var cmd application.CreateChannelCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd.UserID = userID
		channel, err := h.service.Create(r.Context(), &cmd)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, channel)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ChannelHandler) channelHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.Channel")
	defer span.End()
	r = r.WithContext(ctx)

	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/channels/")
	toggle := strings.HasSuffix(id, "/toggle")
	id = strings.TrimSuffix(id, "/toggle")
	if id == "" {
		http.Error(w, "missing channel id", http.StatusBadRequest)
		return
	}

	switch {
	case toggle && r.Method == http.MethodPost:
		channel, err := h.service.Toggle(r.Context(), id, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, channel)
	case r.Method == http.MethodDelete:
		if err := h.service.Delete(r.Context(), id, userID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing X-User-ID header", http.StatusUnauthorized)
	}
	return userID
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.Ctx(r.Context()).Error().Err(err).Msg("channel api internal error")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
