package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ecoupon/internal/pkg/logger"
	"ecoupon/internal/service/coupon/application"
	"ecoupon/internal/service/coupon/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "coupon-service"

// 业务错误码，0 表示成功
const (
	codeOK             = 0
	codeBadRequest     = 100001
	codeInternal       = 100002
	codeCouponNotFound = 240001
	codeOutOfStock     = 240002
	codeNotPublished   = 240003
	codeOutOfWindow    = 240004
	codeOverLimit      = 240005
	codeNotEligible    = 240006
	codeRecordLockFail = 250001
	codeRecordNotFound = 250002
)

// apiResponse 是统一的响应信封
type apiResponse struct {
	Code int         `json:"code"`
	Data interface{} `json:"data,omitempty"`
	Msg  string      `json:"msg,omitempty"`
}

// CouponHandler 封装了 coupon 服务的 HTTP 处理器
type CouponHandler struct {
	service *application.CouponApplicationService
}

// NewCouponHandler 创建一个新的 HTTP 处理器实例
func NewCouponHandler(service *application.CouponApplicationService) *CouponHandler {
	return &CouponHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CouponHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/coupon/v1/page_coupon", h.pageCouponHandler)
	mux.HandleFunc("/api/coupon/v1/claim", h.claimHandler)
	mux.HandleFunc("/api/coupon/v1/new_user_coupon", h.newUserCouponHandler)
	mux.HandleFunc("/api/coupon/v1/lock_records", h.lockRecordsHandler)
	mux.HandleFunc("/api/coupon/v1/page_record", h.pageRecordHandler)
	mux.HandleFunc("/api/coupon/v1/record", h.recordHandler)
}

func (h *CouponHandler) pageCouponHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "coupon.PageCoupon")
	defer span.End()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	result, err := h.service.PageCoupons(ctx, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, apiResponse{Code: codeOK, Data: result})
}

func (h *CouponHandler) claimHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "coupon.Claim")
	defer span.End()

	var req application.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, apiResponse{Code: codeBadRequest, Msg: "invalid request body"})
		return
	}
	if req.CouponID <= 0 || req.UserID <= 0 {
		writeJSON(w, apiResponse{Code: codeBadRequest, Msg: "couponId and userId are required"})
		return
	}

	span.SetAttributes(
		attribute.Int64("coupon.id", req.CouponID),
		attribute.Int64("user.id", req.UserID),
	)

	user := domain.Identity{ID: req.UserID, Name: req.UserName}
	if err := h.service.Claim(ctx, req.CouponID, domain.CategoryPromotion, user); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, apiResponse{Code: codeOK})
}

// newUserCouponHandler 由用户服务在注册成功后调用，身份直接来自请求体。
func (h *CouponHandler) newUserCouponHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "coupon.NewUserCoupon")
	defer span.End()

	var req application.NewUserBundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, apiResponse{Code: codeBadRequest, Msg: "invalid request body"})
		return
	}
	if req.UserID <= 0 {
		writeJSON(w, apiResponse{Code: codeBadRequest, Msg: "user_id is required"})
		return
	}

	if err := h.service.GrantNewUserBundle(ctx, &req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, apiResponse{Code: codeOK})
}

func (h *CouponHandler) lockRecordsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "coupon.LockRecords")
	defer span.End()

	var req application.LockRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, apiResponse{Code: codeBadRequest, Msg: "invalid request body"})
		return
	}
	if req.UserID <= 0 || req.OrderOutTradeNo == "" || len(req.LockRecordIDs) == 0 {
		writeJSON(w, apiResponse{Code: codeBadRequest, Msg: "userId, orderOutTradeNo and lockRecordIds are required"})
		return
	}

	span.SetAttributes(
		attribute.String("order.out_trade_no", req.OrderOutTradeNo),
		attribute.Int("record.count", len(req.LockRecordIDs)),
	)

	if err := h.service.LockForOrder(ctx, &req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, apiResponse{Code: codeOK})
}

func (h *CouponHandler) pageRecordHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "coupon.PageRecord")
	defer span.End()

	userID, _ := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if userID <= 0 {
		writeJSON(w, apiResponse{Code: codeBadRequest, Msg: "userId is required"})
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	result, err := h.service.PageRecords(ctx, userID, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, apiResponse{Code: codeOK, Data: result})
}

// recordHandler 查询单条领券记录，userId 一起限定，查不到别人的记录。
func (h *CouponHandler) recordHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "coupon.Record")
	defer span.End()

	recordID, _ := strconv.ParseInt(r.URL.Query().Get("recordId"), 10, 64)
	userID, _ := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if recordID <= 0 || userID <= 0 {
		writeJSON(w, apiResponse{Code: codeBadRequest, Msg: "recordId and userId are required"})
		return
	}

	record, err := h.service.FindRecord(ctx, recordID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, apiResponse{Code: codeOK, Data: record})
}

func startSpan(r *http.Request, name string) (ctx context.Context, span trace.Span) {
	propagator := otel.GetTextMapPropagator()
	ctx = propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	return tracer.Start(ctx, name)
}

func writeJSON(w http.ResponseWriter, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError 把领域错误翻译成业务错误码。未知错误只回 internal error，细节进日志。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch {
	case errors.Is(err, domain.ErrCouponNotFound):
		code = codeCouponNotFound
	case errors.Is(err, domain.ErrCouponOutOfStock):
		code = codeOutOfStock
	case errors.Is(err, domain.ErrCouponNotPublished):
		code = codeNotPublished
	case errors.Is(err, domain.ErrCouponOutOfWindow):
		code = codeOutOfWindow
	case errors.Is(err, domain.ErrCouponOverLimit):
		code = codeOverLimit
	case errors.Is(err, domain.ErrCouponNotEligible):
		code = codeNotEligible
	case errors.Is(err, domain.ErrRecordLockFail):
		code = codeRecordLockFail
	case errors.Is(err, domain.ErrRecordNotFound):
		code = codeRecordNotFound
	default:
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, apiResponse{Code: codeInternal, Msg: "internal error"})
		return
	}
	writeJSON(w, apiResponse{Code: code, Msg: err.Error()})
}
