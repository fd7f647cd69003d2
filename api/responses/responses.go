// Package responses writes the JSON envelopes every handler returns.
package responses

import (
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// WriteSuccess answers 200 with {"data": data}.
func WriteSuccess(w http.ResponseWriter, data any) { WriteData(w, http.StatusOK, data) }

// WriteCreated answers 201 with {"data": data}.
func WriteCreated(w http.ResponseWriter, data any) { WriteData(w, http.StatusCreated, data) }

func WriteData(w http.ResponseWriter, status int, data any) {
	send(w, status, types.DataEnvelope{Data: data})
}

// WriteError logs err with its diagnostics and answers with its public view.
// Errors without a code are reported as INTERNAL_ERROR and their text stays in the log.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	if logg != nil && err != nil {
		logg.Error(logg.WithFields(ctx, pkgerrors.LogFields(err)), "request.error", err)
	}

	meta := pkgerrors.MetadataFor(typed.Code())
	view := types.ErrorBody{
		Code:    string(typed.Code()),
		Kind:    string(typed.Kind()),
		Message: typed.PublicMessage(),
	}
	if meta.DetailsAllowed {
		view.Details = typed.Details()
	}
	send(w, meta.HTTPStatus, types.ErrorEnvelope{Error: view})
}

func send(w http.ResponseWriter, status int, envelope any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	// Nothing useful can be done once the status line is out.
	_ = json.NewEncoder(w).Encode(envelope)
}
