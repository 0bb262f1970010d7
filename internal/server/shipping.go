package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/tournevent/shipping/internal/telemetry"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// maxBodyBytes bounds the request body of POST /shipping.
const maxBodyBytes = 1 << 20

// quoteRequestSchema describes the POST /shipping body.
const quoteRequestSchema = `{
  "type": "object",
  "required": ["zipcode", "variants"],
  "properties": {
    "zipcode": {"type": "string", "minLength": 1},
    "variants": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "product_id", "quantity"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "product_id": {"type": "string"},
          "quantity": {"type": "integer", "minimum": 1}
        }
      }
    },
    "fields": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

var quoteSchema = gojsonschema.NewStringLoader(quoteRequestSchema)

type validationError struct {
	Detail []string `json:"detail"`
}

// quoteHandler serves POST /shipping.
type quoteHandler struct {
	secret  []byte
	shipper shipper.Shipper
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
	schema  *gojsonschema.Schema
}

func newQuoteHandler(secret string, sh shipper.Shipper, logger *otelzap.Logger, metrics *telemetry.Metrics) *quoteHandler {
	schema, err := gojsonschema.NewSchema(quoteSchema)
	if err != nil {
		// The schema is a constant; failing here is a programming error.
		panic(err)
	}
	return &quoteHandler{
		secret:  []byte(secret),
		shipper: sh,
		logger:  logger,
		metrics: metrics,
		schema:  schema,
	}
}

func (h *quoteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.Ctx(ctx)

	if !h.authorized(r.Header.Get("token")) {
		h.metrics.RecordOutcome("unauthorized")
		http.Error(w, "Invalid access token", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.metrics.RecordOutcome("invalid")
		writeJSON(w, http.StatusRequestEntityTooLarge, validationError{Detail: []string{err.Error()}})
		return
	}

	req, problems := h.decode(body)
	if len(problems) > 0 {
		h.metrics.RecordOutcome("invalid")
		writeJSON(w, http.StatusUnprocessableEntity, validationError{Detail: problems})
		return
	}

	result, err := h.shipper.GetQuote(ctx, req)
	if err != nil {
		log.Error("Shipping quote failed", zap.String("storefront", h.shipper.Name()), zap.Error(err))
		h.metrics.RecordOutcome("transport_error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordOutcome(outcome(result))
	writeJSON(w, http.StatusOK, result)
}

// authorized compares the caller token with the configured secret byte for byte.
func (h *quoteHandler) authorized(token string) bool {
	if len(h.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), h.secret) == 1
}

// decode validates body against the request schema and the request invariants.
func (h *quoteHandler) decode(body []byte) (*shipper.QuoteRequest, []string) {
	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, []string{"invalid JSON: " + err.Error()}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.Context().String()+": "+desc.Description())
		}
		return nil, problems
	}

	// The schema has accepted the document; what remains are field values
	// the schema does not bound, such as a quantity too large for an int.
	var req shipper.QuoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, []string{err.Error()}
	}
	if err := req.Validate(); err != nil {
		return nil, []string{err.Error()}
	}
	return &req, nil
}

func outcome(r *shipper.Result) string {
	if !r.Error {
		return "success"
	}
	switch r.Message {
	case shipper.MessageCartFailed:
		return "cart_failed"
	case shipper.MessageCheckoutFailed:
		return "checkout_failed"
	case shipper.MessageQuoteFailed:
		return "quote_failed"
	}
	return "failed"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
