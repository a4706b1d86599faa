// internal/service/alert/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/service/alert/application"
	"ticketradar/internal/service/alert/domain"
)

const serviceName = "matcher-service"

// AlertHandler 告警 CRUD 的 HTTP 处理器。
// 认证由网关完成，用户身份通过 X-User-ID 头传入。
type AlertHandler struct {
	service *application.AlertApplicationService
}

func NewAlertHandler(service *application.AlertApplicationService) *AlertHandler {
	return &AlertHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *AlertHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/alerts", h.alertsHandler)
	mux.HandleFunc("/api/v1/alerts/", h.alertHandler)
}

func (h *AlertHandler) alertsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.Alerts")
	defer span.End()
	r = r.WithContext(ctx)

	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// alertHandler 处理 /api/v1/alerts/{id} 及其 /toggle 子路径。
func (h *AlertHandler) alertHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "api.Alert")
	defer span.End()
	r = r.WithContext(ctx)

	id := r.URL.Path[len("/api/v1/alerts/"):]
	toggle := false
	if n := len(id); n > len("/toggle") && id[n-len("/toggle"):] == "/toggle" {
		id = id[:n-len("/toggle")]
		toggle = true
	}
	if id == "" {
		http.Error(w, "missing alert id", http.StatusBadRequest)
		return
	}

	switch {
	case toggle && r.Method == http.MethodPost:
		h.toggle(w, r, id)
	case r.Method == http.MethodGet:
		h.get(w, r, id)
	case r.Method == http.MethodPatch || r.Method == http.MethodPut:
		h.update(w, r, id)
	case r.Method == http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AlertHandler) create(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var cmd application.CreateAlertCommand
	if err := decodeStrict(r, &cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd.UserID = userID

	view, err := h.service.Create(r.Context(), &cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *AlertHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var cmd application.UpdateAlertCommand
	if err := decodeStrict(r, &cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd.AlertID = id
	cmd.UserID = userID

	view, err := h.service.Update(r.Context(), &cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AlertHandler) toggle(w http.ResponseWriter, r *http.Request, id string) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	view, err := h.service.Toggle(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AlertHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	view, err := h.service.Get(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AlertHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AlertHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	f := domain.ListFilter{
		Status:   domain.Status(q.Get("status")),
		Platform: q.Get("platform"),
		Search:   q.Get("search"),
		Page:     page,
		PerPage:  perPage,
	}

	views, total, err := h.service.List(r.Context(), userID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": views,
		"total":  total,
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing X-User-ID header", http.StatusUnauthorized)
	}
	return userID
}

// decodeStrict 拒绝带未知字段的请求体，打错的过滤键直接报错而不是被忽略。
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
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
		logger.Ctx(r.Context()).Error().Err(err).Msg("alert api internal error")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
