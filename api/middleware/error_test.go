package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/llm"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/fyerfyer/pdf-qa/internal/services"
	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		typ  string
	}{
		{"not found", fmt.Errorf("get: %w", models.ErrDocumentNotFound), http.StatusNotFound, ErrorTypeNotFound},
		{"not ready", models.ErrDocumentNotReady, http.StatusConflict, ErrorTypeConflict},
		{"transition", services.ErrInvalidTransition, http.StatusConflict, ErrorTypeConflict},
		{"format", document.ErrUnsupportedFormat, http.StatusBadRequest, ErrorTypeValidation},
		{"empty question", llm.ErrEmptyQuestion, http.StatusBadRequest, ErrorTypeValidation},
		{"no text", services.ErrNoTextExtracted, http.StatusBadRequest, ErrorTypeBusiness},
		{"llm upstream", fmt.Errorf("answer: %w", llm.NewLLMError(llm.ErrCodeServerError, "boom")), http.StatusBadGateway, ErrorTypeUpstream},
		{"llm timeout", llm.WrapError(context.DeadlineExceeded, llm.ErrCodeTimeout), http.StatusGatewayTimeout, ErrorTypeUpstream},
		{"app error", NewForbiddenError("no"), http.StatusForbidden, ErrorTypeForbidden},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromError(tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.typ, appErr.Type)
		})
	}
}
